package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/goodimpact/backoffice-api/internal/domain/order"
)

// WebSocket constants
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 32
)

// MessageType tags frames sent to and from an operator session
type MessageType string

const (
	MessageAction  MessageType = "action"
	MessageChanged MessageType = "order_changed"
	MessageRefresh MessageType = "refresh"
)

// SessionMessage is a frame of the operator session
type SessionMessage struct {
	Type   MessageType         `json:"type"`
	Action *Action             `json:"action,omitempty"`
	Event  *order.OrderChanged `json:"event,omitempty"`
}

// Session is one operator screen: a websocket, its own Scanner and the action last pushed to it
type Session struct {
	shopID     uuid.UUID
	operatorID uuid.UUID

	conn    *websocket.Conn
	surface *Surface
	hub     *Hub
	scanner *Scanner
	log     zerolog.Logger

	send chan []byte

	mu   sync.Mutex
	last *Action
}

func newSession(conn *websocket.Conn, shopID, operatorID uuid.UUID, surface *Surface, hub *Hub, lister OrderLister, interval time.Duration, log zerolog.Logger) *Session {
	s := &Session{
		shopID:     shopID,
		operatorID: operatorID,
		conn:       conn,
		surface:    surface,
		hub:        hub,
		log:        log,
		send:       make(chan []byte, sendBuffer),
	}
	s.scanner = NewScanner(shopID, lister, surface.cfg.Offsets, interval, s.onScan)
	return s
}

// Run serves the session until the socket closes, ctx ends or the hub shuts down.
// Every goroutine it starts has returned when Run returns.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.hub.ctx, cancel)
	defer stop()

	sub := s.hub.Subscribe(s.shopID)
	defer s.hub.Unsubscribe(sub)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.scanner.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.writer(ctx)
	}()
	go func() {
		defer wg.Done()
		s.relay(ctx, sub)
	}()

	s.log.Info().Msg("Dispatch session opened")
	s.reader(cancel)
	cancel()
	s.conn.Close()
	wg.Wait()
	s.log.Info().Msg("Dispatch session closed")
}

// relay turns order changes of the shop into rescans
func (s *Session) relay(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			s.enqueue(SessionMessage{Type: MessageChanged, Event: &ev})
			s.scanner.Refresh()
		}
	}
}

func (s *Session) onScan(snap Snapshot) {
	action := s.surface.decide(snap.Active, snap.Near, snap.ScannedAt)

	s.mu.Lock()
	if s.last != nil && s.last.same(action) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.enqueue(SessionMessage{Type: MessageAction, Action: &action}) {
		s.mu.Lock()
		s.last = &action
		s.mu.Unlock()
	}
}

// enqueue never blocks; a full buffer drops the frame and reports false.
func (s *Session) enqueue(msg SessionMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		s.log.Warn().Str("type", string(msg.Type)).Msg("Dispatch session send buffer full")
		return false
	}
}

func (s *Session) reader(cancel context.CancelFunc) {
	defer cancel()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Dispatch session read error")
			}
			return
		}

		var msg SessionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == MessageRefresh {
			s.mu.Lock()
			s.last = nil
			s.mu.Unlock()
			s.scanner.Refresh()
		}
	}
}

func (s *Session) writer(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.conn.Close()
			return

		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.conn.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		}
	}
}
