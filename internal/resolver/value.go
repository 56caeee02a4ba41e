package resolver

import "github.com/roach88/runcache/internal/workspace"

// Value is the input accepted by Set. It is a sealed union of None,
// Materialized, Text, List and Number.
type Value interface {
	resolverValue()
}

// None resets the identity.
type None struct{}

func (None) resolverValue() {}

// Materialized adopts an already loaded workspace.
type Materialized struct {
	Workspace *workspace.Workspace
}

func (Materialized) resolverValue() {}

// Text is a registry name or a run reference such as "MAR11001.nxs" or
// "11001,11002".
type Text string

func (Text) resolverValue() {}

// List is a run list. A single element is unwrapped; several elements
// request a sum.
type List []Value

func (List) resolverValue() {}

// Number is a run number.
type Number int

func (Number) resolverValue() {}

// Runs builds a List of run numbers.
func Runs(runs ...int) List {
	out := make(List, len(runs))
	for i, r := range runs {
		out[i] = Number(r)
	}
	return out
}

// IsEmpty reports whether v carries no identity: nil, None, an empty Text or
// an empty List.
func IsEmpty(v Value) bool {
	switch v := v.(type) {
	case nil, None:
		return true
	case Text:
		return v == ""
	case List:
		return len(v) == 0
	case Materialized:
		return v.Workspace == nil
	default:
		return false
	}
}
