// Package stream provides real-time event distribution to connected clients.
package stream

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"virtual-trader/internal/logging"
)

const (
	stockTopicPrefix = "stock:"
	userTopicPrefix  = "user:"
)

// StockTopic returns the topic carrying price updates for symbol.
func StockTopic(symbol string) string {
	return stockTopicPrefix + symbol
}

// UserTopic returns the private topic of a user.
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

// Event is a single message delivered to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of drops between warnings.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize:      64,
		SlowConsumerDropThreshold: 10,
	}
}

// Subscriber is one connection registered with the hub.
type Subscriber struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	events  chan Event
	dropped atomic.Uint64
	topics  map[string]struct{} // guarded by Hub.mu
	closed  bool                // guarded by Hub.mu
}

// Events returns the channel the subscriber reads from. It is closed on
// Unregister.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Dropped returns how many events were dropped for this subscriber.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Hub maps topics to subscribers. Publishing never blocks: an event for a
// subscriber whose buffer is full is dropped and counted.
type Hub struct {
	config HubConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	topics      map[string]map[string]*Subscriber
	closed      bool

	// Metrics
	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// HubMetrics is a point-in-time view of hub activity.
type HubMetrics struct {
	Subscribers     int    `json:"subscribers"`
	Topics          int    `json:"topics"`
	EventsPublished uint64 `json:"eventsPublished"`
	EventsDelivered uint64 `json:"eventsDelivered"`
	EventsDropped   uint64 `json:"eventsDropped"`
}

// NewHub creates a hub with the default configuration.
func NewHub(logger zerolog.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a hub with a custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	if config.SubscriberBufferSize < 1 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	if config.SlowConsumerDropThreshold < 1 {
		config.SlowConsumerDropThreshold = DefaultHubConfig().SlowConsumerDropThreshold
	}
	return &Hub{
		config:      config,
		logger:      logging.WithComponent(logger, "hub"),
		subscribers: make(map[string]*Subscriber),
		topics:      make(map[string]map[string]*Subscriber),
	}
}

// Register adds a subscriber for userID. After Close the returned
// subscriber's channel is already closed.
func (h *Hub) Register(userID string) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now(),
		events:    make(chan Event, h.config.SubscriberBufferSize),
		topics:    make(map[string]struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.closed = true
		close(sub.events)
		return sub
	}
	h.subscribers[sub.ID] = sub
	return sub
}

// Unregister removes the subscriber from every topic and closes its
// channel. It is safe to call more than once.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(sub)
}

func (h *Hub) unregisterLocked(sub *Subscriber) {
	if sub.closed {
		return
	}
	for topic := range sub.topics {
		h.leaveLocked(sub, topic)
	}
	delete(h.subscribers, sub.ID)
	sub.closed = true
	close(sub.events)
}

// Subscribe adds the subscriber to topic. It reports false if the
// subscriber is no longer registered.
func (h *Hub) Subscribe(sub *Subscriber, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return false
	}
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]*Subscriber)
		h.topics[topic] = members
	}
	members[sub.ID] = sub
	sub.topics[topic] = struct{}{}
	return true
}

// Subscribed reports whether sub is currently a member of topic.
func (h *Hub) Subscribed(sub *Subscriber, topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[topic][sub.ID]
	return ok
}

// Unsubscribe removes the subscriber from topic.
func (h *Hub) Unsubscribe(sub *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sub, topic)
}

func (h *Hub) leaveLocked(sub *Subscriber, topic string) {
	delete(sub.topics, topic)
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(members, sub.ID)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// Publish delivers ev to every subscriber of topic and returns the number
// of subscribers that received it.
func (h *Hub) Publish(topic string, ev Event) int {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sub := range h.topics[topic] {
		if h.deliver(sub, ev) {
			n++
		}
	}
	return n
}

// Broadcast delivers ev to every registered subscriber.
func (h *Hub) Broadcast(ev Event) int {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sub := range h.subscribers {
		if h.deliver(sub, ev) {
			n++
		}
	}
	return n
}

// Send delivers ev to a single subscriber.
func (h *Hub) Send(sub *Subscriber, ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sub.closed {
		return false
	}
	return h.deliver(sub, ev)
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(sub *Subscriber, ev Event) bool {
	select {
	case sub.events <- ev:
		h.delivered.Add(1)
		return true
	default:
		h.dropped.Add(1)
		n := sub.dropped.Add(1)
		if n%uint64(h.config.SlowConsumerDropThreshold) == 0 {
			h.logger.Warn().
				Str("subscriber", sub.ID).
				Str("user_id", sub.UserID).
				Uint64("dropped", n).
				Msg("Slow consumer dropping events")
		}
		return false
	}
}

// ActiveSymbols returns the sorted symbols with at least one subscriber.
func (h *Hub) ActiveSymbols() []string {
	return h.topicSuffixes(stockTopicPrefix)
}

// ActiveUsers returns the sorted user ids subscribed to their own topic.
func (h *Hub) ActiveUsers() []string {
	return h.topicSuffixes(userTopicPrefix)
}

func (h *Hub) topicSuffixes(prefix string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0)
	for topic, members := range h.topics {
		if len(members) > 0 && strings.HasPrefix(topic, prefix) {
			out = append(out, strings.TrimPrefix(topic, prefix))
		}
	}
	sort.Strings(out)
	return out
}

// SubscriberCount returns the number of subscribers on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Metrics returns current hub metrics.
func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	subs, topics := len(h.subscribers), len(h.topics)
	h.mu.RUnlock()
	return HubMetrics{
		Subscribers:     subs,
		Topics:          topics,
		EventsPublished: h.published.Load(),
		EventsDelivered: h.delivered.Load(),
		EventsDropped:   h.dropped.Load(),
	}
}

// Close unregisters every subscriber. Later registrations are closed
// immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subscribers {
		h.unregisterLocked(sub)
	}
	h.logger.Info().Msg("Hub closed")
}
