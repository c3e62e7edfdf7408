// Package agent contains the analyst implementations that turn visible
// market history into trading signals.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sailorworks/open-hedge-fund/internal/marketdata"
	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

// Agent produces at most one signal per ticker per date.
type Agent interface {
	// Name identifies the agent in decisions, logs, and metrics.
	Name() string
	// Evaluate inspects the history visible on the view's trade date for
	// one ticker and returns a signal, or nil to abstain.
	Evaluate(ctx context.Context, view *marketdata.View, ticker string, pos portfolio.Position) (*sig.Signal, error)
}

// Registry holds agents in priority order. Registration order is the
// tie-break used by consensus, so earlier agents carry more authority.
type Registry struct {
	agents []Agent
}

// NewRegistry builds a registry from the given agents, in order.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{}
	for _, a := range agents {
		if err := r.Add(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends an agent. Names must be unique since they key decisions.
func (r *Registry) Add(a Agent) error {
	if a == nil || a.Name() == "" {
		return fmt.Errorf("agent: missing name")
	}
	for _, existing := range r.agents {
		if existing.Name() == a.Name() {
			return fmt.Errorf("agent: duplicate name %q", a.Name())
		}
	}
	r.agents = append(r.agents, a)
	return nil
}

// Agents returns the lineup in priority order.
func (r *Registry) Agents() []Agent {
	out := make([]Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Len reports the lineup size.
func (r *Registry) Len() int { return len(r.agents) }

// Names lists agent names in priority order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.agents))
	for i, a := range r.agents {
		out[i] = a.Name()
	}
	return out
}

// Invoke runs one agent with a deadline. Errors, timeouts, and malformed
// payloads all collapse into an abstention plus a reason the caller can log;
// a bad agent never stops the run. The returned signal, when present, has
// its identity fields stamped and its confidence clamped.
func Invoke(parent context.Context, a Agent, view *marketdata.View, ticker string, pos portfolio.Position, timeout time.Duration) (*sig.Signal, string) {
	ctx := parent
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	defer cancel()

	type outcome struct {
		s   *sig.Signal
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := a.Evaluate(ctx, view, ticker, pos)
		done <- outcome{s: s, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Sprintf("agent %s: no signal for %s: %v", a.Name(), ticker, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Sprintf("agent %s: no signal for %s: %v", a.Name(), ticker, res.err)
		}
		if res.s == nil {
			return nil, ""
		}
		out := *res.s
		out.AgentID = a.Name()
		out.Ticker = ticker
		out.Confidence = clamp01(out.Confidence)
		if !out.Action.Valid() {
			return nil, fmt.Sprintf("agent %s: invalid action %q for %s", a.Name(), out.Action, ticker)
		}
		return &out, ""
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
