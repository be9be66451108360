package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Event types carried on the hub.
const (
	EventCallUpdate = "call_update"
	EventTranscript = "transcript"
)

// Event is one observable state change fanned out to dashboard subscribers.
type Event struct {
	Type      string                 `json:"type"`
	Action    string                 `json:"action,omitempty"`
	CallID    string                 `json:"call_id,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	// Origin identifies the publishing hub instance so a redis mirror does
	// not re-deliver an instance's own events.
	Origin string `json:"origin,omitempty"`
}

// subscriberBuffer is each subscriber's channel depth. A subscriber that
// falls this far behind starts losing events rather than stalling publishers.
const subscriberBuffer = 16

// Hub fans events out to in-process subscribers, optionally mirrored through
// redis pub/sub so every instance behind a load balancer sees every event.
type Hub struct {
	id          string
	redisClient *redis.Client
	channel     string

	mu          sync.RWMutex
	subscribers map[string]chan Event
}

// NewHub creates a local-only hub.
func NewHub() *Hub {
	return &Hub{
		id:          uuid.New().String(),
		subscribers: make(map[string]chan Event),
	}
}

// NewHubWithRedis creates a hub that mirrors events through a redis channel.
func NewHubWithRedis(client *redis.Client, channel string) *Hub {
	h := NewHub()
	h.redisClient = client
	h.channel = channel
	return h
}

// Subscribe registers a new listener. The returned cancel function must be
// called when the listener goes away; events arriving after that are dropped.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	id := uuid.New().String()
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(existing)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of active local subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish fans an event out to local subscribers and, when configured, to the
// redis mirror. A slow subscriber loses the event; publishing never blocks a
// webhook handler.
func (h *Hub) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Origin = h.id

	h.deliverLocal(event)

	if h.redisClient != nil {
		data, err := json.Marshal(event)
		if err != nil {
			logger.Base().Error("failed to marshal broadcast event", zap.Error(err))
			return
		}
		if err := h.redisClient.Publish(ctx, h.channel, data).Err(); err != nil {
			logger.Base().Warn("failed to mirror event to redis", zap.Error(err))
		}
	}
}

func (h *Hub) deliverLocal(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			logger.Base().Warn("dropping event for slow subscriber",
				zap.String("subscriber_id", id),
				zap.String("event_type", event.Type))
		}
	}
}

// StartMirror consumes the redis channel and fans foreign events into local
// subscribers. It returns immediately; consumption stops when ctx is done.
func (h *Hub) StartMirror(ctx context.Context) {
	if h.redisClient == nil {
		return
	}
	pubsub := h.redisClient.Subscribe(ctx, h.channel)

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Base().Warn("failed to unmarshal mirrored event", zap.Error(err))
					continue
				}
				if event.Origin == h.id {
					continue
				}
				h.deliverLocal(event)
			}
		}
	}()
}

// CallUpdate builds the standard call lifecycle event.
func CallUpdate(action, callID, agentID, status string) Event {
	return Event{
		Type:    EventCallUpdate,
		Action:  action,
		CallID:  callID,
		AgentID: agentID,
		Status:  status,
	}
}

// TranscriptEvent builds the conversation turn event.
func TranscriptEvent(callID, agentID, role, content string) Event {
	return Event{
		Type:    EventTranscript,
		CallID:  callID,
		AgentID: agentID,
		Payload: map[string]interface{}{"role": role, "content": content},
	}
}
