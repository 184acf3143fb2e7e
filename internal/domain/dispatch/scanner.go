package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goodimpact/backoffice-api/internal/domain/order"
	"github.com/goodimpact/backoffice-api/internal/pkg/logger"
)

// Offsets are the per-mode lead times shared by the near-ETA window and the lead-time gate
type Offsets struct {
	Delivery time.Duration
	Takeaway time.Duration
}

// For returns the offset of mode m
func (o Offsets) For(m order.Mode) time.Duration {
	if m == order.ModeTakeaway {
		return o.Takeaway
	}
	return o.Delivery
}

// FloorMinute drops seconds and below
func FloorMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// FirstNearETA returns the first confirmed order, in input order, whose eta falls inside
// [.., FloorMinute(now)+offset(mode)]. Orders without an eta are skipped.
func FirstNearETA(orders []order.Order, now time.Time, offsets Offsets) *order.Order {
	floored := FloorMinute(now)
	for i := range orders {
		o := &orders[i]
		if o.Status != order.StatusConfirmed || o.ETA == nil {
			continue
		}
		detection := floored.Add(offsets.For(o.Mode))
		if !detection.Before(*o.ETA) {
			return o
		}
	}
	return nil
}

// OrderLister loads a shop's active orders, newest first
type OrderLister interface {
	ListActive(ctx context.Context, shopID uuid.UUID) ([]order.Order, error)
}

// Snapshot is the result of one scan
type Snapshot struct {
	Active []order.Order
	Near   *order.Order
	// NearChanged is set when the selected order differs from the previous scan.
	NearChanged bool
	ScannedAt   time.Time
}

// Scanner periodically selects the near-ETA order of one shop. It is built per operator session
// and holds the selected id only in memory.
type Scanner struct {
	shopID   uuid.UUID
	lister   OrderLister
	offsets  Offsets
	interval time.Duration
	now      func() time.Time
	onScan   func(Snapshot)

	refresh chan struct{}

	mu      sync.Mutex
	nearID  uuid.UUID
	ticking bool
}

// NewScanner creates a scanner. onScan is called from Run's goroutine after every successful scan.
func NewScanner(shopID uuid.UUID, lister OrderLister, offsets Offsets, interval time.Duration, onScan func(Snapshot)) *Scanner {
	if onScan == nil {
		onScan = func(Snapshot) {}
	}
	return &Scanner{
		shopID:   shopID,
		lister:   lister,
		offsets:  offsets,
		interval: interval,
		now:      time.Now,
		onScan:   onScan,
		refresh:  make(chan struct{}, 1),
	}
}

// Refresh asks for a scan now. Signals coalesce and never block.
func (s *Scanner) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// NearETA returns the currently selected order id
func (s *Scanner) NearETA() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nearID, s.nearID != uuid.Nil
}

// Ticking reports whether the periodic timer is armed
func (s *Scanner) Ticking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticking
}

// Run scans immediately, on every Refresh, and on the interval while the shop has active orders.
// It returns when ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	var ticker *time.Ticker
	var tick <-chan time.Time

	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		s.setTicking(false)
	}
	defer stop()

	for {
		// a failed scan keeps (or arms) the timer so the next tick retries
		active, ok := s.scan(ctx)
		switch {
		case ok && active == 0:
			stop()
		case ticker == nil:
			ticker = time.NewTicker(s.interval)
			tick = ticker.C
			s.setTicking(true)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.refresh:
		case <-tick:
		}
	}
}

func (s *Scanner) setTicking(v bool) {
	s.mu.Lock()
	s.ticking = v
	s.mu.Unlock()
}

// scan returns the number of active orders; ok is false when the list could not be loaded.
func (s *Scanner) scan(ctx context.Context) (int, bool) {
	active, err := s.lister.ListActive(ctx, s.shopID)
	if err != nil {
		if ctx.Err() == nil {
			logger.FromContext(ctx).Error().Err(err).Str("shop_id", s.shopID.String()).Msg("near-eta scan failed")
		}
		return 0, false
	}

	now := s.now()
	near := FirstNearETA(active, now, s.offsets)

	var nearID uuid.UUID
	if near != nil {
		nearID = near.ID
	}

	s.mu.Lock()
	changed := nearID != s.nearID
	if changed {
		s.nearID = nearID
	}
	s.mu.Unlock()

	s.onScan(Snapshot{Active: active, Near: near, NearChanged: changed, ScannedAt: now})
	return len(active), true
}
