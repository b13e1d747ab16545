package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu         sync.Mutex
	events     [][]byte
	heartbeats int
	fail       error
	closed     bool
	delay      time.Duration
	block      chan struct{}
	done       chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{done: make(chan struct{})}
}

func (f *fakeSink) Send(data []byte) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, append([]byte(nil), data...))
	return nil
}

func (f *fakeSink) Heartbeat() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.heartbeats++
	return nil
}

func (f *fakeSink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

func (f *fakeSink) Done() <-chan struct{} { return f.done }

func (f *fakeSink) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = string(e)
	}
	return out
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestSubscribeSeedsCurrentSnapshot(t *testing.T) {
	snapshot := []byte(`{"device_id":"CLP-01"}`)
	r := NewRegistry(func() [][]byte { return [][]byte{snapshot} }, zap.NewNop())

	sink := newFakeSink()
	h, err := r.Subscribe(sink)
	require.NoError(t, err)
	assert.NotEmpty(t, h)

	assert.Equal(t, []string{`{"device_id":"CLP-01"}`}, sink.received(), "seeded before Subscribe returned")
	assert.Equal(t, 1, r.Count())
}

func TestSubscribeWithoutSnapshot(t *testing.T) {
	r := NewRegistry(func() [][]byte { return nil }, nil)
	sink := newFakeSink()
	_, err := r.Subscribe(sink)
	require.NoError(t, err)
	assert.Empty(t, sink.received())
}

func TestSubscribeSeedFailureDoesNotRegister(t *testing.T) {
	r := NewRegistry(func() [][]byte { return [][]byte{[]byte(`{}`)} }, zap.NewNop())
	sink := newFakeSink()
	sink.fail = errors.New("broken pipe")

	_, err := r.Subscribe(sink)
	require.Error(t, err)
	assert.Equal(t, 0, r.Count())
	assert.True(t, sink.isClosed())
}

func TestSlowSeedDoesNotDelayBroadcast(t *testing.T) {
	r := NewRegistry(func() [][]byte { return [][]byte{[]byte(`{"n":0}`)} }, zap.NewNop())
	fast := newFakeSink()
	_, err := r.Subscribe(fast)
	require.NoError(t, err)

	slow := newFakeSink()
	slow.block = make(chan struct{})
	subscribed := make(chan error, 1)
	go func() {
		_, err := r.Subscribe(slow)
		subscribed <- err
	}()
	require.Eventually(t, func() bool { return r.Count() == 2 }, time.Second, time.Millisecond)

	start := time.Now()
	assert.Equal(t, 2, r.Broadcast([]byte(`{"n":1}`)))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, []string{`{"n":0}`, `{"n":1}`}, fast.received())
	assert.Equal(t, 2, r.Heartbeat(), "seeding viewer skips the keep-alive")
	assert.Equal(t, 0, slow.heartbeats)

	close(slow.block)
	require.NoError(t, <-subscribed)
	assert.Equal(t, []string{`{"n":0}`, `{"n":1}`}, slow.received(), "queued event written after the seed")

	assert.Equal(t, 2, r.Broadcast([]byte(`{"n":2}`)))
	assert.Equal(t, []string{`{"n":0}`, `{"n":1}`, `{"n":2}`}, slow.received())
}

func TestSeedBacklogOverflowDropsViewer(t *testing.T) {
	r := NewRegistry(func() [][]byte { return [][]byte{[]byte(`{}`)} }, zap.NewNop())
	slow := newFakeSink()
	slow.block = make(chan struct{})
	subscribed := make(chan error, 1)
	go func() {
		_, err := r.Subscribe(slow)
		subscribed <- err
	}()
	require.Eventually(t, func() bool { return r.Count() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < maxPending; i++ {
		require.Equal(t, 1, r.Broadcast([]byte(`{}`)))
	}
	assert.Equal(t, 0, r.Broadcast([]byte(`{}`)))
	assert.Equal(t, 0, r.Count())

	close(slow.block)
	assert.Error(t, <-subscribed)
	assert.True(t, slow.isClosed())
}

func TestBroadcastIsolatesBrokenSubscriber(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())

	const k = 5
	sinks := make([]*fakeSink, k)
	for i := range sinks {
		sinks[i] = newFakeSink()
		_, err := r.Subscribe(sinks[i])
		require.NoError(t, err)
	}
	sinks[2].fail = errors.New("connection reset")

	delivered := r.Broadcast([]byte(`{"n":1}`))
	assert.Equal(t, k-1, delivered)

	for i, s := range sinks {
		if i == 2 {
			assert.Empty(t, s.received())
			assert.True(t, s.isClosed())
			continue
		}
		assert.Equal(t, []string{`{"n":1}`}, s.received())
	}
	assert.Equal(t, k-1, r.Count(), "broken subscriber removed")

	assert.Equal(t, k-1, r.Broadcast([]byte(`{"n":2}`)))
}

func TestBroadcastSlowSubscriberDoesNotSerialize(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())
	for i := 0; i < 4; i++ {
		s := newFakeSink()
		s.delay = 50 * time.Millisecond
		_, err := r.Subscribe(s)
		require.NoError(t, err)
	}

	start := time.Now()
	assert.Equal(t, 4, r.Broadcast([]byte(`{}`)))
	assert.Less(t, time.Since(start), 180*time.Millisecond, "writes run concurrently")
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())
	sink := newFakeSink()
	h, err := r.Subscribe(sink)
	require.NoError(t, err)

	r.Unsubscribe(h)
	r.Unsubscribe(h)
	r.Unsubscribe("unknown")

	assert.Equal(t, 0, r.Count())
	assert.True(t, sink.isClosed())
	assert.Equal(t, 0, r.Broadcast([]byte(`{}`)))
}

func TestUnsubscribeDuringBroadcast(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())
	handles := make([]Handle, 0, 20)
	for i := 0; i < 20; i++ {
		s := newFakeSink()
		s.delay = time.Millisecond
		h, err := r.Subscribe(s)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			r.Broadcast([]byte(`{}`))
		}
	}()
	go func() {
		defer wg.Done()
		for _, h := range handles {
			r.Unsubscribe(h)
		}
	}()
	wg.Wait()

	assert.Equal(t, 0, r.Count())
}

func TestHeartbeatDropsFailingSubscriber(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())
	good, bad := newFakeSink(), newFakeSink()
	bad.fail = errors.New("timeout")
	_, err := r.Subscribe(good)
	require.NoError(t, err)
	_, err = r.Subscribe(bad)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.RunHeartbeat(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		good.mu.Lock()
		defer good.mu.Unlock()
		return good.heartbeats >= 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, r.Count())
	assert.True(t, bad.isClosed())
}

func TestCloseDropsEveryone(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())
	sinks := []*fakeSink{newFakeSink(), newFakeSink()}
	for _, s := range sinks {
		_, err := r.Subscribe(s)
		require.NoError(t, err)
	}
	r.Close()
	assert.Equal(t, 0, r.Count())
	for _, s := range sinks {
		assert.True(t, s.isClosed())
	}
}
