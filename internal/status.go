package pducycle

import (
	"sync"
	"time"
)

// Status is a point-in-time snapshot of the orchestrator, served by the
// daemon endpoint and safe to marshal as JSON.
type Status struct {
	State     string    `json:"state"`
	Cycle     int       `json:"cycle"`
	Satisfied int       `json:"satisfied"`
	Required  int       `json:"required"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusBoard publishes orchestrator progress to concurrent readers.
// The orchestrator is the only writer.
type StatusBoard struct {
	mu     sync.RWMutex
	status Status
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		status: Status{State: "idle", UpdatedAt: time.Now()},
	}
}

func (b *StatusBoard) Set(state string, cycle, satisfied, required int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = Status{
		State:     state,
		Cycle:     cycle,
		Satisfied: satisfied,
		Required:  required,
		UpdatedAt: time.Now(),
	}
}

func (b *StatusBoard) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}
