package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/swappin/pkg/app/core/event"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]event.Event
	fail    bool
	gate    chan struct{}
}

func (p *fakePublisher) Publish(_ context.Context, events []event.Event) error {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func batch(height uint64) []event.Event {
	return []event.Event{{
		Kind:   event.Transfer,
		Token:  common.HexToAddress("0x1000000000000000000000000000000000000001"),
		From:   common.HexToAddress("0xAA00000000000000000000000000000000000000"),
		To:     common.HexToAddress("0xBB00000000000000000000000000000000000000"),
		Amount: uint256.NewInt(5),
		Height: height,
	}}
}

func TestForwarderPublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(pub, 8, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	for h := uint64(1); h <= 3; h++ {
		f.Enqueue(batch(h))
	}
	f.Enqueue(nil)

	require.Eventually(t, func() bool { return pub.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for i, b := range pub.batches {
		assert.Equal(t, uint64(i+1), b[0].Height)
	}
}

func TestForwarderDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(pub, 2, zap.NewNop().Sugar())

	// nothing is draining the queue yet
	for h := uint64(1); h <= 5; h++ {
		f.Enqueue(batch(h))
	}
	assert.Len(t, f.queue, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Run(ctx)

	assert.Equal(t, 2, pub.count(), "queued batches drain on shutdown")
}

func TestForwarderSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{fail: true}
	f := NewForwarder(pub, 4, zap.NewNop().Sugar())
	f.Enqueue(batch(1))
	f.Enqueue(batch(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() { f.Run(ctx) })
	assert.Empty(t, f.queue)
}
