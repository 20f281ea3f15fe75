package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/jobdone/core/model"
)

// MemoryStore keeps events in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	log   []model.DockEvent
	index map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: map[string]int{}}
}

func (s *MemoryStore) Insert(_ context.Context, ev model.DockEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[ev.ID]; ok {
		return fmt.Errorf("event %s already stored", ev.ID)
	}
	s.index[ev.ID] = len(s.log)
	s.log = append(s.log, clone(ev))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.DockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.DockEvent{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return clone(s.log[i]), nil
}

func (s *MemoryStore) Ack(_ context.Context, id string, at time.Time) (model.DockEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return model.DockEvent{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	ev := s.log[i]
	if err := ev.MarkAcked(at); err != nil {
		return clone(s.log[i]), err
	}
	s.log[i] = ev
	return clone(ev), nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]model.DockEvent, error) {
	s.mu.RLock()
	out := make([]model.DockEvent, 0, len(s.log))
	for i := len(s.log) - 1; i >= 0; i-- {
		out = append(out, clone(s.log[i]))
	}
	s.mu.RUnlock()
	// out is newest-inserted first; the stable sort keeps that for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(ev model.DockEvent) model.DockEvent {
	if ev.AckedAt != nil {
		a := *ev.AckedAt
		ev.AckedAt = &a
	}
	return ev
}
