package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/inboxsync/internal/worker"
)

type scriptedCounter struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	count int
	err   error
}

func (c *scriptedCounter) UnreadCount(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.results[min(c.calls, len(c.results)-1)]
	c.calls++
	return r.count, r.err
}

func (c *scriptedCounter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type countSink struct {
	mu     sync.Mutex
	counts []int
}

func (s *countSink) ReplaceUnreadCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, count)
}

func (s *countSink) Counts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.counts...)
}

type pollRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *pollRecorder) ObservePoll(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *pollRecorder) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func TestDefaultUnreadPollerConfig(t *testing.T) {
	config := worker.DefaultUnreadPollerConfig()

	assert.Equal(t, 30*time.Second, config.Interval)
	assert.True(t, config.Enabled)
}

func TestUnreadPoller_RefreshesImmediately(t *testing.T) {
	counter := &scriptedCounter{results: []result{{count: 4}}}
	sink := &countSink{}
	poller := worker.NewUnreadPoller(counter, sink, nil, worker.UnreadPollerConfig{Interval: time.Hour, Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Start(ctx) }()

	require.Eventually(t, func() bool { return len(sink.Counts()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{4}, sink.Counts())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestUnreadPoller_FailuresLeaveCounterUntouched(t *testing.T) {
	counter := &scriptedCounter{results: []result{
		{count: 2},
		{err: errors.New("network down")},
		{count: 5},
	}}
	sink := &countSink{}
	recorder := &pollRecorder{}
	poller := worker.NewUnreadPoller(counter, sink, nil, worker.UnreadPollerConfig{Interval: 5 * time.Millisecond, Enabled: true})
	poller.SetObserver(recorder)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Start(ctx) }()

	require.Eventually(t, func() bool { return len(recorder.Outcomes()) >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	counts := sink.Counts()
	require.GreaterOrEqual(t, len(counts), 2)
	assert.Equal(t, []int{2, 5}, counts[:2])
	assert.Equal(t, []string{"success", "error", "success"}, recorder.Outcomes()[:3])
}

func TestUnreadPoller_NoRefreshAfterStop(t *testing.T) {
	counter := &scriptedCounter{results: []result{{count: 1}}}
	sink := &countSink{}
	poller := worker.NewUnreadPoller(counter, sink, nil, worker.UnreadPollerConfig{Interval: 2 * time.Millisecond, Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Start(ctx) }()

	require.Eventually(t, func() bool { return counter.Calls() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	stopped := counter.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, counter.Calls())
}

func TestUnreadPoller_Disabled(t *testing.T) {
	counter := &scriptedCounter{results: []result{{count: 1}}}
	poller := worker.NewUnreadPoller(counter, &countSink{}, nil, worker.UnreadPollerConfig{Enabled: false})

	require.NoError(t, poller.Start(context.Background()))
	assert.Equal(t, 0, counter.Calls())
}
