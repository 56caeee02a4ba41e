package harness

import "github.com/roach88/runcache/internal/store"

// TraceEvent records one flow step and its outcome.
type TraceEvent struct {
	Step     int64  `json:"step"`
	Resolver string `json:"resolver"`
	Op       string `json:"op"`
	Arg      string `json:"arg,omitempty"`
	Value    any    `json:"value,omitempty"`
	Result   any    `json:"result,omitempty"`

	// Error is the resolver error code, or "ERROR" for other failures.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Events is the registry event log at the end of the run.
	Events []store.Event `json:"events"`

	// Names lists the registered workspaces at the end of the run.
	Names []string `json:"names"`

	// Loads counts run files read from disk.
	Loads int `json:"loads"`

	// Errors holds expect and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
