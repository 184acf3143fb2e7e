package order

import (
	"errors"
	"testing"
)

func TestCanTransitionGraph(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:    true,
		{StatusPending, StatusCancelled}:    true,
		{StatusConfirmed, StatusProcessing}: true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusProcessing, StatusShipped}:   true,
		{StatusProcessing, StatusRefunded}:  true,
		{StatusShipped, StatusDelivered}:    true,
		{StatusShipped, StatusRefunded}:     true,
	}
	all := []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded}

	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != allowed[[2]Status{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusCancelled, StatusRefunded} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(NextStatuses(s)) != 0 {
			t.Errorf("%s should have no next statuses", s)
		}
	}
}

func TestRefundsPoints(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusCancelled, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusProcessing, StatusRefunded, true},
		{StatusShipped, StatusRefunded, true},
		{StatusShipped, StatusDelivered, false},
		{StatusConfirmed, StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := RefundsPoints(tc.from, tc.to); got != tc.want {
			t.Errorf("RefundsPoints(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionErrorMatchesSentinel(t *testing.T) {
	var err error = &TransitionError{From: StatusDelivered, To: StatusPending}
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatal("TransitionError should match ErrTransitionNotAllowed")
	}
	if err.Error() != "transition delivered -> pending not allowed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestLabelDependsOnMode(t *testing.T) {
	if got := Label(StatusShipped, ModeDelivery); got != "Delivering" {
		t.Fatalf("delivery shipped label = %q", got)
	}
	if got := Label(StatusShipped, ModeTakeaway); got != "Ready" {
		t.Fatalf("takeaway shipped label = %q", got)
	}
	if got := Label(StatusConfirmed, ModeTakeaway); got != "Accepted" {
		t.Fatalf("confirmed label = %q", got)
	}
}
