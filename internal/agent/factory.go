package agent

import (
	"fmt"
	"strings"
)

// Spec describes one configured agent. Fields irrelevant to the chosen kind
// are ignored, and zero values take each constructor's defaults.
type Spec struct {
	Kind      string
	Lookback  int
	Threshold float64
	Window    int
	EntryZ    float64
	CheapPE   float64
	RichPE    float64
}

// Build constructs the configured lineup in order; list order sets the
// priority used for consensus tie-breaks. An empty list yields the default
// lineup of momentum, mean reversion, and fundamental.
func Build(specs []Spec) (*Registry, error) {
	if len(specs) == 0 {
		return NewRegistry(
			NewMomentum(0, 0),
			NewMeanReversion(0, 0),
			NewFundamental(0, 0),
		)
	}

	registry := &Registry{}
	for _, spec := range specs {
		a, err := build(spec)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(a); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func build(spec Spec) (Agent, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case "momentum":
		return NewMomentum(spec.Lookback, spec.Threshold), nil
	case "meanreversion", "mean_reversion":
		return NewMeanReversion(spec.Window, spec.EntryZ), nil
	case "fundamental", "value":
		return NewFundamental(spec.CheapPE, spec.RichPE), nil
	default:
		return nil, fmt.Errorf("agent: unknown kind %q", spec.Kind)
	}
}
