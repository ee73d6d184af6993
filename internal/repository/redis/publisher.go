package redis

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

const EventChannelPrefix = "codebattle:events:"

// Envelope is the message published for every emitted event.
type Envelope struct {
	Topic   string    `json:"topic"`
	Event   string    `json:"event"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// EventPublisher mirrors match events to Redis pub/sub so other services can
// follow matches. Emit never blocks; events are dropped when the buffer is
// full.
type EventPublisher struct {
	client  *redis.Client
	events  chan Envelope
	dropped atomic.Int64
	log     *zap.Logger
}

func NewEventPublisher(client *redis.Client, buffer int, log *zap.Logger) *EventPublisher {
	return &EventPublisher{
		client: client,
		events: make(chan Envelope, buffer),
		log:    log,
	}
}

func (p *EventPublisher) Emit(topic, event string, payload any) {
	select {
	case p.events <- Envelope{Topic: topic, Event: event, Payload: payload, At: time.Now()}:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.log.Warn("[REDIS] Event buffer full, dropping events", zap.Int64("dropped", n))
		}
	}
}

// Join and Leave are no-ops: subscribers pick channels themselves.
func (p *EventPublisher) Join(string, domain.PlayerID)  {}
func (p *EventPublisher) Leave(string, domain.PlayerID) {}

// Dropped returns how many events were discarded so far.
func (p *EventPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run publishes buffered events until ctx is cancelled, then drains what is
// left.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case env := <-p.events:
			p.publish(ctx, env)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

func (p *EventPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case env := <-p.events:
			p.publish(ctx, env)
		default:
			return
		}
	}
}

func (p *EventPublisher) publish(ctx context.Context, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		p.log.Error("[REDIS] Failed to encode event", zap.String("event", env.Event), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, EventChannelPrefix+env.Topic, data).Err(); err != nil && ctx.Err() == nil {
		p.log.Warn("[REDIS] Failed to publish event",
			zap.String("topic", env.Topic),
			zap.String("event", env.Event),
			zap.Error(err))
	}
}
