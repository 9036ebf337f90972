package intervene

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum spacing between spoken interventions.
// Warning on every risky window would talk over the whole call.
const DefaultCooldown = 30 * time.Second

// Gate decides whether a risk assessment may trigger a spoken intervention.
// Safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time

	now func() time.Time
}

func NewGate(cooldown time.Duration) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{cooldown: cooldown, now: time.Now}
}

// ShouldIntervene reports whether this risk level warrants speaking now.
// Only medium and high qualify, and never inside the cooldown window.
func (g *Gate) ShouldIntervene(riskLevel string) bool {
	if riskLevel != "medium" && riskLevel != "high" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.last.IsZero() && g.now().Sub(g.last) < g.cooldown {
		return false
	}
	return true
}

// MarkIntervened starts a new cooldown window. Called after every attempt,
// failed ones included, so a broken speaker does not cause rapid retries.
func (g *Gate) MarkIntervened() {
	g.mu.Lock()
	g.last = g.now()
	g.mu.Unlock()
}

// Cooldown reports the configured spacing.
func (g *Gate) Cooldown() time.Duration { return g.cooldown }
