package validator

import "testing"

type statusRequest struct {
	Status string `json:"status" validate:"required,order_status"`
	Mode   string `json:"mode,omitempty" validate:"omitempty,order_mode"`
}

func TestValidateOrderStatus(t *testing.T) {
	if errs := Validate(&statusRequest{Status: "cancelled"}); errs != nil {
		t.Fatalf("expected valid, got %v", errs)
	}

	errs := Validate(&statusRequest{Status: "archived"})
	if errs == nil || errs["status"] == "" {
		t.Fatalf("expected status error keyed by json name, got %v", errs)
	}
}

func TestValidateOrderMode(t *testing.T) {
	if errs := Validate(&statusRequest{Status: "pending", Mode: "Takeaway"}); errs != nil {
		t.Fatalf("expected valid, got %v", errs)
	}
	errs := Validate(&statusRequest{Status: "pending", Mode: "takeaway"})
	if errs["mode"] == "" {
		t.Fatalf("expected mode error, got %v", errs)
	}
}
