// Package signal standardizes payloads shared between the agent and execution layers.
package signal

// Action enumerates the directives an agent may issue for a ticker.
type Action string

const (
	// Long opens or extends a long position.
	Long Action = "long"
	// Short opens or extends a short position.
	Short Action = "short"
	// Sell closes some or all of an existing long position.
	Sell Action = "sell"
	// Cover buys back some or all of an existing short position.
	Cover Action = "cover"
	// Hold expresses an explicit preference to do nothing.
	Hold Action = "hold"
)

// Valid reports whether the action is one of the recognized directives.
func (a Action) Valid() bool {
	switch a {
	case Long, Short, Sell, Cover, Hold:
		return true
	}
	return false
}

// Opens reports whether the action increases exposure on its side.
func (a Action) Opens() bool { return a == Long || a == Short }

// Closes reports whether the action reduces existing exposure.
func (a Action) Closes() bool { return a == Sell || a == Cover }

// Signal expresses one agent's view on one ticker for the current trade date.
// Confidence is clamped to [0, 1] by the emitting layer.
type Signal struct {
	AgentID    string  `json:"agent_id"`
	Ticker     string  `json:"ticker"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Decision is the consensus reached for a ticker after weighing every signal
// emitted for it on a given date. Strength carries the weighted agreement
// behind Action and Agents lists the contributors in priority order.
type Decision struct {
	Ticker   string   `json:"ticker"`
	Action   Action   `json:"action"`
	Strength float64  `json:"strength"`
	Agents   []string `json:"contributing_agents,omitempty"`
}
