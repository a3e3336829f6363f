package source

import (
	"context"
	"io"
	"sync"

	"github.com/nerrad567/meterthing/internal/infrastructure/mqtt"
	"github.com/nerrad567/meterthing/internal/obis"
)

// defaultBuffer is the number of decoded polls held before the MQTT handler
// starts blocking.
const defaultBuffer = 16

// Subscriber is the part of the MQTT client used by MQTTSource.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTOptions configures an MQTTSource.
type MQTTOptions struct {
	Topic  string
	QoS    byte
	Format Format
	Buffer int
}

// MQTTSource receives readings published by the meter decoder.
//
// Each message on the topic is one poll. Messages are decoded in the MQTT
// handler and queued in arrival order; when the queue is full the handler
// blocks rather than dropping polls.
//
// Thread Safety:
//   - Next must be called from a single goroutine.
//   - Start and Close are safe to call from any goroutine.
type MQTTSource struct {
	sub  Subscriber
	opts MQTTOptions

	queue chan Result
	done  chan struct{}

	mu        sync.Mutex
	started   bool
	closeOnce sync.Once
}

// NewMQTTSource creates a source; call Start to subscribe.
func NewMQTTSource(sub Subscriber, opts MQTTOptions) *MQTTSource {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	return &MQTTSource{
		sub:   sub,
		opts:  opts,
		queue: make(chan Result, opts.Buffer),
		done:  make(chan struct{}),
	}
}

// Start subscribes to the readings topic.
func (s *MQTTSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.sub.Subscribe(s.opts.Topic, s.opts.QoS, s.handle); err != nil {
		return err
	}
	s.started = true
	return nil
}

// handle decodes one message and queues it.
func (s *MQTTSource) handle(_ string, payload []byte) error {
	r, err := Decode(s.opts.Format, payload)

	select {
	case s.queue <- Result{Reading: r, Err: err}:
	case <-s.done:
	}
	return err
}

// Next implements Source. After Close, queued polls are still returned and
// then io.EOF.
func (s *MQTTSource) Next(ctx context.Context) (obis.Reading, error) {
	select {
	case res := <-s.queue:
		return res.Reading, res.Err
	default:
	}

	select {
	case res := <-s.queue:
		return res.Reading, res.Err
	case <-s.done:
		select {
		case res := <-s.queue:
			return res.Reading, res.Err
		default:
			return obis.Reading{}, io.EOF
		}
	case <-ctx.Done():
		return obis.Reading{}, ctx.Err()
	}
}

// Close unsubscribes and ends the stream. Safe to call more than once.
func (s *MQTTSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			err = s.sub.Unsubscribe(s.opts.Topic)
		}
	})
	return err
}
