package analytics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/kafka"
)

// Publisher sends one event to the event stream. *kafka.Producer
// implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector publishes search events one at a time from a buffered channel.
// Events tracked while the buffer is full, or after Close, are dropped.
type Collector struct {
	publisher Publisher
	eventCh   chan SearchEvent
	logger    *slog.Logger
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan SearchEvent, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event SearchEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "query", event.Query)
	}
}

// Close stops accepting events and waits for buffered ones to be published.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (c *Collector) publish(ctx context.Context, event SearchEvent) {
	if err := c.publisher.Publish(ctx, KafkaEvent(event)); err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
	}
}

// KafkaEvent wraps a search event for the event stream. Events are keyed by
// query so repeats of one query land on one partition.
func KafkaEvent(event SearchEvent) kafka.Event {
	return kafka.Event{
		Key:   event.Query,
		Value: event,
		Headers: map[string]string{
			"type": string(event.Type),
			"mode": event.Mode,
		},
	}
}
