package app

import (
	"context"
	"sync"

	"spawnme/internal/permission"
)

// Policy applies permission.mode in front of the gate. "granted" and
// "denied" answer without asking and without touching the stored answer, so
// a reload that switches the mode takes effect on the next request.
type Policy struct {
	gate *permission.Gate

	mu   sync.RWMutex
	mode string
}

func NewPolicy(mode string, gate *permission.Gate) *Policy {
	return &Policy{gate: gate, mode: mode}
}

func (p *Policy) SetMode(mode string) {
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
}

func (p *Policy) Mode() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// Override reports the decision forced by the mode, if any.
func (p *Policy) Override() (permission.Decision, bool) {
	d := permission.Decision(p.Mode())
	return d, d.Valid()
}

func (p *Policy) RequestPermission(ctx context.Context) (permission.Decision, error) {
	if d, ok := p.Override(); ok {
		return d, nil
	}
	return p.gate.RequestPermission(ctx)
}
