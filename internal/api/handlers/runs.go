// Package handlers implements the HTTP handlers of the backtest API.
package handlers

import (
	"sync"

	"stock-backtest/internal/backtest"
)

// run tracks one backtest from submission to its terminal state.
type run struct {
	engine *backtest.Engine

	mu  sync.Mutex
	err error
}

func (r *run) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *run) runErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// RunManager is the uuid-keyed registry of submitted runs. Finished runs stay
// until the process exits; reports must remain fetchable.
type RunManager struct {
	mu   sync.RWMutex
	runs map[string]*run
}

func NewRunManager() *RunManager {
	return &RunManager{runs: make(map[string]*run)}
}

func (m *RunManager) add(id string, r *run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id] = r
}

func (m *RunManager) get(id string) (*run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	return r, ok
}
