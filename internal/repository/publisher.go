package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GoPolymarket/polyclob/internal/stream"
	"github.com/redis/go-redis/v9"
)

const (
	defaultChannelPrefix = "polyclob"
	defaultRecentMax     = 1000
	publishTimeout       = 2 * time.Second
)

// Envelope is what subscribers of the fan-out channels receive.
type Envelope struct {
	Channel    stream.Channel   `json:"channel"`
	EventType  stream.EventType `json:"event_type"`
	ReceivedAt time.Time        `json:"received_at"`
	Event      json.RawMessage  `json:"event"`
}

// EventPublisher re-publishes stream events to Redis pub/sub and keeps a
// capped list of recent events per type.
type EventPublisher struct {
	rdb       redis.Cmdable
	channel   stream.Channel
	prefix    string
	recentMax int
	now       func() time.Time
}

var _ stream.Listener = (*EventPublisher)(nil)

func NewEventPublisher(rdb redis.Cmdable, channel stream.Channel, prefix string, recentMax int) *EventPublisher {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	if recentMax <= 0 {
		recentMax = defaultRecentMax
	}
	return &EventPublisher{
		rdb:       rdb,
		channel:   channel,
		prefix:    prefix,
		recentMax: recentMax,
		now:       time.Now,
	}
}

// Topic is the pub/sub channel for one event type.
func (p *EventPublisher) Topic(eventType stream.EventType) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, p.channel, eventType)
}

func (p *EventPublisher) recentKey(eventType stream.EventType) string {
	return p.Topic(eventType) + ":recent"
}

func (p *EventPublisher) encode(ev stream.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{
		Channel:    p.channel,
		EventType:  ev.Type(),
		ReceivedAt: p.now().UTC(),
		Event:      body,
	})
}

func (p *EventPublisher) OnEvent(ev stream.Event) error {
	payload, err := p.encode(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	topic := p.Topic(ev.Type())
	recent := p.recentKey(ev.Type())
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, topic, payload)
		pipe.LPush(ctx, recent, payload)
		pipe.LTrim(ctx, recent, 0, int64(p.recentMax-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Recent returns up to limit envelopes, newest first.
func (p *EventPublisher) Recent(ctx context.Context, eventType stream.EventType, limit int) ([]Envelope, error) {
	if limit <= 0 || limit > p.recentMax {
		limit = p.recentMax
	}
	items, err := p.rdb.LRange(ctx, p.recentKey(eventType), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Envelope, 0, len(items))
	for _, item := range items {
		var env Envelope
		if err := json.Unmarshal([]byte(item), &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}
