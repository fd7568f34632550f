package kafka

import (
	"context"
	"testing"
	"time"
)

func waitClosed(t *testing.T, p *Producer) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.WaitClosed()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer loop did not exit")
	}
}

// Close then cancel is the shutdown order cmd/api runs; both must be
// able to race the flush loop without a double close of the inbox.
func TestProducerCloseThenCancel(t *testing.T) {
	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewProducer([]string{"localhost:9092"}, "orders.test", 16)
		p.Start(ctx)

		p.Close()
		cancel()
		waitClosed(t, p)
	}
}

func TestProducerCancelThenClose(t *testing.T) {
	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewProducer([]string{"localhost:9092"}, "orders.test", 16)
		p.Start(ctx)

		cancel()
		p.Close()
		waitClosed(t, p)
	}
}

func TestProducerCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProducer([]string{"localhost:9092"}, "orders.test", 16)
	p.Start(ctx)

	p.Close()
	p.Close()
	waitClosed(t, p)
}

// A straggler publishing during shutdown must be dropped, not panic.
func TestProducerPublishAfterClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProducer([]string{"localhost:9092"}, "orders.test", 16)
	p.Start(ctx)

	p.Close()
	p.Publish([]byte("k"), []byte("v"))
	waitClosed(t, p)
}
