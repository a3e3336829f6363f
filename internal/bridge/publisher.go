package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/meterthing/internal/infrastructure/mqtt"
	"github.com/nerrad567/meterthing/internal/obis"
	"github.com/nerrad567/meterthing/internal/thing"
)

// MQTTClient is the interface for MQTT publishing.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// PublisherConfig holds configuration for a StatePublisher.
type PublisherConfig struct {
	// Slug is the topic-safe thing identifier.
	Slug string

	// QoS for state and description messages.
	QoS byte

	// Client publishes the messages.
	Client MQTTClient
}

type pendingValue struct {
	value obis.Value
	at    time.Time
}

// StatePublisher mirrors property values to retained MQTT topics.
//
// Its observer only records the latest value per property and wakes a worker,
// so a slow or disconnected broker never holds up the sync loop. Values that
// change several times before the worker runs are published once, with the
// newest value.
//
// Thread Safety: All methods are safe for concurrent use.
type StatePublisher struct {
	cfg   PublisherConfig
	thing *thing.Thing

	pending   map[string]pendingValue
	order     []string
	pendingMu sync.Mutex
	wake      chan struct{}
	resync    chan struct{}

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewStatePublisher creates a publisher for th.
func NewStatePublisher(th *thing.Thing, cfg PublisherConfig) *StatePublisher {
	return &StatePublisher{
		cfg:     cfg,
		thing:   th,
		pending: make(map[string]pendingValue),
		wake:    make(chan struct{}, 1),
		resync:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for this publisher.
func (p *StatePublisher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

func (p *StatePublisher) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

// Start publishes the description and every current value, then starts the
// worker. Call Stop to shut it down.
func (p *StatePublisher) Start(ctx context.Context) {
	if err := p.publishAll(); err != nil {
		p.getLogger().Warn("initial state publish failed", "error", err)
	}

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop flushes pending values and stops the worker. Safe to call multiple
// times.
func (p *StatePublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.flush()
	})
}

// Observer returns the thing.Observer that feeds this publisher.
func (p *StatePublisher) Observer() thing.Observer {
	return func(name string, v obis.Value) {
		p.pendingMu.Lock()
		if _, queued := p.pending[name]; !queued {
			p.order = append(p.order, name)
		}
		p.pending[name] = pendingValue{value: v, at: time.Now()}
		p.pendingMu.Unlock()

		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Resync asks the worker to republish the description and every current
// value, e.g. after an MQTT reconnect. Requests made while one is queued are
// coalesced.
func (p *StatePublisher) Resync() {
	select {
	case p.resync <- struct{}{}:
	default:
	}
}

// publishAll publishes the description and a consistent snapshot of every
// property.
func (p *StatePublisher) publishAll() error {
	desc, err := json.Marshal(p.thing.Describe(""))
	if err != nil {
		return fmt.Errorf("encoding description: %w", err)
	}
	if err := p.cfg.Client.Publish(mqtt.Topics{}.ThingDescription(p.cfg.Slug), desc, p.cfg.QoS, true); err != nil {
		return err
	}

	now := time.Now()
	var messages []StateMessage
	p.thing.Read(func(s thing.Snapshot) {
		s.Each(func(prop *thing.Property, v obis.Value) {
			messages = append(messages, NewStateMessage(p.thing.ID(), prop.Name(), v, now))
		})
	})
	for _, msg := range messages {
		if err := p.publish(msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *StatePublisher) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-p.wake:
			p.flush()
		case <-p.resync:
			// The snapshot carries every pending value.
			p.pendingMu.Lock()
			p.order = nil
			p.pending = make(map[string]pendingValue)
			p.pendingMu.Unlock()
			if err := p.publishAll(); err != nil {
				p.getLogger().Warn("republish failed", "error", err)
			}
		}
	}
}

// flush publishes and clears the pending values in first-change order.
func (p *StatePublisher) flush() {
	p.pendingMu.Lock()
	order, pending := p.order, p.pending
	p.order = nil
	p.pending = make(map[string]pendingValue, len(pending))
	p.pendingMu.Unlock()

	for _, name := range order {
		pv := pending[name]
		if err := p.publish(NewStateMessage(p.thing.ID(), name, pv.value, pv.at)); err != nil {
			p.getLogger().Warn("state publish failed", "property", name, "error", err)
		}
	}
}

func (p *StatePublisher) publish(msg StateMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", msg.Property, err)
	}
	return p.cfg.Client.Publish(mqtt.Topics{}.PropertyState(p.cfg.Slug, msg.Property), payload, p.cfg.QoS, true)
}
