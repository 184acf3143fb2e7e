package dispatch

import (
	"context"
	"encoding/json"
	"expvar"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/goodimpact/backoffice-api/internal/domain/order"
	"github.com/goodimpact/backoffice-api/internal/pkg/database"
)

// shopChannelPrefix is followed by the shop id. External checkout publishes new orders here too.
const shopChannelPrefix = "dispatch:shop:"

const subscriptionBuffer = 16

var (
	dispatchSessionsGauge  = expvar.NewInt("dispatch_sessions")
	dispatchEventsDropped  = expvar.NewInt("dispatch_events_dropped_total")
	dispatchEventsReceived = expvar.NewInt("dispatch_events_received_total")
)

// ShopChannel is the redis channel of a shop's order changes
func ShopChannel(shopID uuid.UUID) string {
	return shopChannelPrefix + shopID.String()
}

type shopEventMessage struct {
	order.OrderChanged
	SenderInstanceID string `json:"sender_instance_id,omitempty"`
}

// Subscription receives the order changes of one shop
type Subscription struct {
	ShopID uuid.UUID
	C      chan order.OrderChanged
}

// Hub fans order changes out to the operator sessions of each shop, across instances through
// Redis Pub/Sub when a client is configured.
type Hub struct {
	subscribers map[uuid.UUID]map[*Subscription]struct{}
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
}

// NewHub creates a hub. redisClient may be nil, then events stay on this instance.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		subscribers: make(map[uuid.UUID]map[*Subscription]struct{}),
		redis:       redisClient,
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  uuid.NewString(),
	}
	if redisClient != nil {
		h.pubsub = redisClient.PSubscribe(ctx, shopChannelPrefix+"*")
	}
	return h
}

// Run relays Redis messages to local subscribers until Shutdown (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub == nil {
		<-h.ctx.Done()
		return
	}

	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRedisMessage(msg.Channel, msg.Payload)
		}
	}
}

func (h *Hub) handleRedisMessage(channel, payload string) {
	shopID, err := uuid.Parse(strings.TrimPrefix(channel, shopChannelPrefix))
	if err != nil {
		return
	}

	var msg shopEventMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed dispatch event")
		return
	}
	if msg.SenderInstanceID == h.instanceID {
		return
	}

	dispatchEventsReceived.Add(1)
	msg.ShopID = shopID
	h.broadcastLocal(msg.OrderChanged)
}

// Subscribe registers a receiver for a shop's order changes
func (h *Hub) Subscribe(shopID uuid.UUID) *Subscription {
	sub := &Subscription{ShopID: shopID, C: make(chan order.OrderChanged, subscriptionBuffer)}

	h.mu.Lock()
	if h.subscribers[shopID] == nil {
		h.subscribers[shopID] = make(map[*Subscription]struct{})
	}
	h.subscribers[shopID][sub] = struct{}{}
	h.mu.Unlock()

	dispatchSessionsGauge.Add(1)
	return sub
}

// Unsubscribe removes sub and closes its channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[sub.ShopID]
	if !ok {
		return
	}
	if _, exists := subs[sub]; !exists {
		return
	}
	delete(subs, sub)
	close(sub.C)
	if len(subs) == 0 {
		delete(h.subscribers, sub.ShopID)
	}
	dispatchSessionsGauge.Add(-1)
}

// PublishOrderChanged delivers ev to local sessions and to other instances
func (h *Hub) PublishOrderChanged(ctx context.Context, ev order.OrderChanged) {
	h.broadcastLocal(ev)

	if h.redis == nil {
		return
	}
	data, err := json.Marshal(shopEventMessage{OrderChanged: ev, SenderInstanceID: h.instanceID})
	if err != nil {
		return
	}
	if err := h.redis.Publish(ctx, ShopChannel(ev.ShopID), data).Err(); err != nil {
		log.Warn().Err(err).Str("shop_id", ev.ShopID.String()).Msg("Failed to publish dispatch event")
	}
}

// broadcastLocal never blocks: a session whose buffer is full misses the event,
// it still rescans on its next tick.
func (h *Hub) broadcastLocal(ev order.OrderChanged) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[ev.ShopID] {
		select {
		case sub.C <- ev:
		default:
			dispatchEventsDropped.Add(1)
		}
	}
}

// LocalSessionCount returns the number of sessions subscribed to shopID on this instance
func (h *Hub) LocalSessionCount(shopID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[shopID])
}

// Ping checks the cross-instance transport
func (h *Hub) Ping(ctx context.Context) error {
	return database.PingRedis(ctx, h.redis)
}

// Shutdown stops the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		if err := h.pubsub.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing dispatch pubsub")
		}
	}
}
