package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobdone/config"
	"github.com/kilianp07/jobdone/core/broker"
	"github.com/kilianp07/jobdone/core/model"
	"github.com/kilianp07/jobdone/core/session"
	"github.com/kilianp07/jobdone/core/store"
	"github.com/kilianp07/jobdone/internal/loopback"
)

type brokerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *brokerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *brokerClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// useLoopback routes CLI sessions to an in-process broker.
func useLoopback(t *testing.T) (*broker.Broker, *brokerClock) {
	t.Helper()
	cat, err := model.NewCatalog(model.DefaultDockSets())
	require.NoError(t, err)
	clock := &brokerClock{now: time.Now().UTC()}
	seq := 0
	b, err := broker.New(broker.Options{
		Catalog: cat,
		Store:   store.NewMemoryStore(),
		Now:     clock.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("e%d", seq)
		},
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()

	prev := dialTransport
	dialTransport = func(_ *config.Config, id string) (session.Transport, error) {
		return loopback.New(b, id), nil
	}
	t.Cleanup(func() {
		dialTransport = prev
		cancel()
		<-done
		_ = b.Close()
	})
	return b, clock
}

func TestDonePrintsItsOwnEvent(t *testing.T) {
	b, clock := useLoopback(t)
	ctx := context.Background()
	now := clock.Now()
	clock.Set(now.Add(-time.Hour))
	old, err := b.SubmitCompletion(ctx, 1, 35, "")
	require.NoError(t, err)
	clock.Set(now)

	out, err := execute(t, "done", "1", "35")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.NotEqual(t, old.ID, id)

	recent, err := b.SyncRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, recent[0].ID, id)
}

func TestAckReportsAlreadyAckedEvent(t *testing.T) {
	b, _ := useLoopback(t)
	ctx := context.Background()
	ev, err := b.SubmitCompletion(ctx, 2, 25, "")
	require.NoError(t, err)
	first, err := b.Acknowledge(ctx, ev.ID, "")
	require.NoError(t, err)

	out, err := execute(t, "ack", ev.ID)
	require.NoError(t, err)
	assert.Contains(t, out, ev.ID+" acked at "+first.AckedAt.Format("2006-01-02 15:04:05"))
}

func TestAckOutsideSignalSync(t *testing.T) {
	b, clock := useLoopback(t)
	ctx := context.Background()
	start := clock.Now().Add(-time.Hour)
	var oldest model.DockEvent
	for i := 0; i < 60; i++ {
		clock.Set(start.Add(time.Duration(i) * time.Second))
		ev, err := b.SubmitCompletion(ctx, 1, 32, "")
		require.NoError(t, err)
		if i == 0 {
			oldest = ev
		}
	}

	out, err := execute(t, "ack", oldest.ID)
	require.NoError(t, err)
	assert.Contains(t, out, oldest.ID+" acked at")

	stored, err := b.SyncRecent(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcked, stored[len(stored)-1].Status)
}

func TestAckUnknownEventFails(t *testing.T) {
	useLoopback(t)
	_, err := execute(t, "ack", "missing")
	var brokerErr *session.BrokerError
	require.ErrorAs(t, err, &brokerErr)
	assert.Contains(t, brokerErr.Message, "not found")
}
