// Package store persists the controller state between runs.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/evdnx/gotrend/risk"
)

// Snapshot is the mutable controller state after a tick.
type Snapshot struct {
	Halted    bool                      `json:"halted"`
	Stops     map[string]risk.StopState `json:"stops"`
	Ticks     int                       `json:"ticks"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

type Store interface {
	Save(ctx context.Context, s Snapshot) error
	// Load reports false when nothing has been saved yet.
	Load(ctx context.Context) (Snapshot, bool, error)
}

// Memory keeps the last snapshot in process.
type Memory struct {
	mu   sync.Mutex
	snap Snapshot
	ok   bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = copySnapshot(s)
	m.ok = true
	return nil
}

func (m *Memory) Load(_ context.Context) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySnapshot(m.snap), m.ok, nil
}

func copySnapshot(s Snapshot) Snapshot {
	out := s
	if s.Stops != nil {
		out.Stops = make(map[string]risk.StopState, len(s.Stops))
		for k, v := range s.Stops {
			out.Stops[k] = v
		}
	}
	return out
}
