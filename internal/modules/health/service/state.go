package service

import (
	"sync"
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	running       atomic.Int64
	lastCycleUnix atomic.Int64 // unix seconds

	mu        sync.RWMutex
	transport map[string]string // network -> ws|rest
}

func NewState() *State {
	s := &State{startedAt: time.Now(), transport: make(map[string]string)}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetRunning(n int) { s.running.Store(int64(n)) }
func (s *State) Running() int     { return int(s.running.Load()) }

func (s *State) SetTransport(network, mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport[network] = mode
}

func (s *State) Transport() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.transport))
	for k, v := range s.transport {
		out[k] = v
	}
	return out
}

// TouchTick — конец очередного цикла стратегии.
func (s *State) TouchTick(t time.Time) { s.lastCycleUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastCycleUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
