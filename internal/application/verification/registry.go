package verification

import (
	"context"
	"sync"
	"time"
)

// Registry holds one Machine per client device and evicts idle ones.
type Registry struct {
	mu        sync.Mutex
	machines  map[string]*Machine
	provider  Provider
	countries Countries
	hints     Hints
	idle      time.Duration
}

func NewRegistry(provider Provider, countries Countries, hints Hints, idle time.Duration) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Registry{
		machines:  make(map[string]*Machine),
		provider:  provider,
		countries: countries,
		hints:     hints,
		idle:      idle,
	}
}

// Get returns the machine for deviceID, creating it on first use. A new
// machine auto-selects the country for region.
func (r *Registry) Get(deviceID, region string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.machines[deviceID]; ok {
		return m
	}
	m := NewMachine(MachineDeps{
		DeviceID:  deviceID,
		Provider:  r.provider,
		Countries: r.countries,
		Hints:     r.hints,
	})
	m.DetectRegion(region)
	r.machines[deviceID] = m
	return m
}

// Len reports how many devices currently hold a machine.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// Run evicts idle machines until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idle / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			r.sweep(now)
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var stale []*Machine
	for id, m := range r.machines {
		if now.Sub(m.idleSince()) > r.idle {
			delete(r.machines, id)
			stale = append(stale, m)
		}
	}
	r.mu.Unlock()
	for _, m := range stale {
		m.closeSubscribers()
	}
}
