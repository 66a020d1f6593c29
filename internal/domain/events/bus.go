// Package events announces kiosk state changes.
//
// Publishing never blocks the caller. Subscribers (the event stream) get a
// buffered channel each and miss events when they fall behind. Sinks (the
// broadcast webhook) are fed in order by a single background worker.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	subscriberBuffer = 16
	sinkQueue        = 64
	sinkTimeout      = 10 * time.Second
)

// Sink delivers events outside the process
type Sink interface {
	Deliver(ctx context.Context, event types.Event) error
}

// Bus fans events out to subscribers and sinks
type Bus struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu          sync.RWMutex
	subscribers map[string]chan types.Event
	sinks       []Sink
	closed      bool

	queue chan types.Event
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewBus creates a bus and starts its sink worker
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		logger:      logger,
		subscribers: make(map[string]chan types.Event),
		queue:       make(chan types.Event, sinkQueue),
		done:        make(chan struct{}),
	}
	b.wg.Add(1)
	go b.deliverLoop()
	return b
}

// WithMetrics counts published events
func (b *Bus) WithMetrics(metrics *monitoring.Metrics) *Bus {
	b.metrics = metrics
	return b
}

// AddSink registers an external destination
func (b *Bus) AddSink(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish stamps the event with an ID and time if missing and fans it out
func (b *Bus) Publish(event types.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Subscriber lagging; event dropped",
				zap.String("subscriber", id),
				zap.String("event", string(event.Type)))
		}
	}

	if len(b.sinks) > 0 {
		select {
		case b.queue <- event:
		default:
			b.logger.Warn("Sink queue full; event dropped", zap.String("event", string(event.Type)))
		}
	}

	if b.metrics != nil {
		b.metrics.RecordEvent(string(event.Type))
	}
	b.logger.Debug("Event published", zap.String("id", event.ID), zap.String("event", string(event.Type)))
}

// Subscribe returns a channel of future events and a cancel function that
// unregisters it. The channel is closed on cancel or Close.
func (b *Bus) Subscribe() (<-chan types.Event, func()) {
	id := uuid.NewString()
	ch := make(chan types.Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close stops the sink worker and closes every subscription. Queued sink
// deliveries are attempted before it returns.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) deliverLoop() {
	defer b.wg.Done()
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.done:
			for {
				select {
				case event := <-b.queue:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(event types.Event) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, sink := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.Deliver(ctx, event); err != nil {
			b.logger.Warn("Event delivery failed",
				zap.String("id", event.ID),
				zap.String("event", string(event.Type)),
				zap.Error(err))
		}
		cancel()
	}
}
