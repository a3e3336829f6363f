package source

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/meterthing/internal/infrastructure/mqtt"
)

// fakeSubscriber records the handler so tests can deliver messages.
type fakeSubscriber struct {
	mu           sync.Mutex
	handler      mqtt.MessageHandler
	topic        string
	qos          byte
	unsubscribed []string
	subscribeErr error
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.topic, f.qos, f.handler = topic, qos, handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeSubscriber) deliver(payload string) error {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	return h(f.topic, []byte(payload))
}

func newStartedSource(t *testing.T, buffer int) (*MQTTSource, *fakeSubscriber) {
	t.Helper()
	sub := &fakeSubscriber{}
	src := NewMQTTSource(sub, MQTTOptions{Topic: "meterthing/readings/meter-1", QoS: 1, Buffer: buffer})
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return src, sub
}

// mustDeliver hands payload to the subscribed handler.
func mustDeliver(t *testing.T, sub *fakeSubscriber, payload string) {
	t.Helper()
	if err := sub.deliver(payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

func TestMQTTSource_Start(t *testing.T) {
	src, sub := newStartedSource(t, 0)

	if sub.topic != "meterthing/readings/meter-1" {
		t.Errorf("subscribed topic = %q", sub.topic)
	}
	if sub.qos != 1 {
		t.Errorf("subscribed QoS = %d, want 1", sub.qos)
	}
	if err := src.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want %v", err, ErrAlreadyStarted)
	}
}

func TestMQTTSource_StartError(t *testing.T) {
	sub := &fakeSubscriber{subscribeErr: mqtt.ErrNotConnected}
	src := NewMQTTSource(sub, MQTTOptions{Topic: "t"})

	if err := src.Start(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() = %v, want %v", err, mqtt.ErrNotConnected)
	}
}

func TestMQTTSource_ArrivalOrder(t *testing.T) {
	src, sub := newStartedSource(t, 4)
	ctx := context.Background()

	mustDeliver(t, sub, `{"registers":[{"code":"1.0.1.8.0.255","type":"number","number":1}]}`)
	mustDeliver(t, sub, `{"registers":[{"code":"1.0.1.8.0.255","type":"number","number":2}]}`)

	for _, want := range []float64{1, 2} {
		r, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		n, _ := mustGet(t, r, "1.0.1.8.0.255").AsNumber()
		if n != want {
			t.Errorf("energy = %v, want %v", n, want)
		}
	}
}

func TestMQTTSource_DecodeErrorIsAnElement(t *testing.T) {
	src, sub := newStartedSource(t, 4)

	if err := sub.deliver(`not json`); !errors.Is(err, ErrDecode) {
		t.Errorf("handler error = %v, want %v", err, ErrDecode)
	}

	if _, err := src.Next(context.Background()); !errors.Is(err, ErrDecode) {
		t.Errorf("Next() error = %v, want %v", err, ErrDecode)
	}
}

func TestMQTTSource_NextHonoursContext(t *testing.T) {
	src, _ := newStartedSource(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestMQTTSource_HandlerBlocksWhenFull(t *testing.T) {
	src, sub := newStartedSource(t, 1)
	msg := `{"registers":[{"code":"1.0.1.8.0.255","type":"null"}]}`

	mustDeliver(t, sub, msg)

	delivered := make(chan struct{})
	go func() {
		_ = sub.deliver(msg)
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("handler should block while the queue is full")
	case <-time.After(30 * time.Millisecond):
	}

	if _, err := src.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("handler did not resume after Next")
	}
}

func TestMQTTSource_CloseDrainsThenEOF(t *testing.T) {
	src, sub := newStartedSource(t, 2)

	mustDeliver(t, sub, `{"registers":[{"code":"1.0.1.8.0.255","type":"null"}]}`)
	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := src.Next(context.Background()); err != nil {
		t.Fatalf("Next() of a queued reading error = %v", err)
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after drain error = %v, want %v", err, io.EOF)
	}
	if want := []string{"meterthing/readings/meter-1"}; !slices.Equal(sub.unsubscribed, want) {
		t.Errorf("unsubscribed = %v, want %v", sub.unsubscribed, want)
	}
}
