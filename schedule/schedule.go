// Package schedule interprets ordered thin-element operator programs over a
// live optical frame. A program is a list of steps, each either a named
// operator or a beam split whose weighted branches carry nested programs;
// execution derives the scalar overlay fields and recombines split branches
// under an energy policy.
package schedule

import (
	"encoding/json"
	"fmt"
)

// Op names a thin-element operator.
type Op uint8

const (
	// OpFlux applies the position-dependent toroidal phase ramp. It runs
	// before amplitude and phase in default programs so their derivations
	// see the twisted field.
	OpFlux Op = iota
	// OpAmplitude derives magnitude and coherence overlays.
	OpAmplitude
	// OpPhase derives wrapped phase gradients and plaquette vorticity.
	OpPhase
)

// String returns the wire name of the operator.
func (o Op) String() string {
	switch o {
	case OpFlux:
		return "flux"
	case OpAmplitude:
		return "amplitude"
	case OpPhase:
		return "phase"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp maps a wire name to an operator.
func ParseOp(s string) (Op, bool) {
	switch s {
	case "flux":
		return OpFlux, true
	case "amplitude":
		return OpAmplitude, true
	case "phase":
		return OpPhase, true
	}
	return OpFlux, false
}

// MarshalJSON encodes the operator as its wire name.
func (o Op) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON decodes a wire name. Unknown operators are structural
// errors, not sanitizable configuration.
func (o *Op) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	op, ok := ParseOp(s)
	if !ok {
		return fmt.Errorf("schedule: unknown operator %q", s)
	}
	*o = op
	return nil
}

// Recombine names a beam-split recombination policy.
type Recombine uint8

const (
	// RecombineSum accumulates weighted branches as-is.
	RecombineSum Recombine = iota
	// RecombineAverage divides the accumulation by the weight sum.
	RecombineAverage
	// RecombineEnergy divides by the root of the squared-weight sum so
	// branch energies add.
	RecombineEnergy
)

// String returns the wire name of the policy.
func (r Recombine) String() string {
	switch r {
	case RecombineSum:
		return "sum"
	case RecombineAverage:
		return "average"
	case RecombineEnergy:
		return "energy"
	}
	return fmt.Sprintf("recombine(%d)", uint8(r))
}

// ParseRecombine maps a wire name to a policy.
func ParseRecombine(s string) (Recombine, bool) {
	switch s {
	case "sum":
		return RecombineSum, true
	case "average":
		return RecombineAverage, true
	case "energy":
		return RecombineEnergy, true
	}
	return RecombineSum, false
}

// MarshalJSON encodes the policy as its wire name.
func (r Recombine) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a wire name, rejecting unknown policies.
func (r *Recombine) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, ok := ParseRecombine(s)
	if !ok {
		return fmt.Errorf("schedule: unknown recombination %q", s)
	}
	*r = mode
	return nil
}

// Branch is one weighted arm of a beam split holding a nested program.
type Branch struct {
	Weight float64 `json:"weight"`
	Steps  []Step  `json:"steps,omitempty"`
}

// Split is a beam-split step: clone the field per branch, run each nested
// program, recombine under Mode.
type Split struct {
	Mode     Recombine `json:"mode"`
	Branches []Branch  `json:"branches"`
}

// Step is either an operator or a beam split; exactly one is set.
type Step struct {
	Op    Op
	Split *Split
}

// Operator wraps an Op into a Step.
func Operator(op Op) Step {
	return Step{Op: op}
}

// BeamSplit wraps a Split into a Step.
func BeamSplit(mode Recombine, branches ...Branch) Step {
	return Step{Split: &Split{Mode: mode, Branches: branches}}
}

// Default returns the canonical operator program: flux, then amplitude,
// then phase.
func Default() []Step {
	return []Step{Operator(OpFlux), Operator(OpAmplitude), Operator(OpPhase)}
}

type stepJSON struct {
	Op    *Op    `json:"op,omitempty"`
	Split *Split `json:"split,omitempty"`
}

// MarshalJSON encodes an operator step as {"op":name} and a split step as
// {"split":{...}}.
func (s Step) MarshalJSON() ([]byte, error) {
	if s.Split != nil {
		return json.Marshal(stepJSON{Split: s.Split})
	}
	op := s.Op
	return json.Marshal(stepJSON{Op: &op})
}

// UnmarshalJSON decodes either step form, rejecting steps that set both or
// neither variant.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Op != nil && raw.Split != nil:
		return fmt.Errorf("schedule: step sets both op and split")
	case raw.Op != nil:
		*s = Step{Op: *raw.Op}
	case raw.Split != nil:
		*s = Step{Split: raw.Split}
	default:
		return fmt.Errorf("schedule: step sets neither op nor split")
	}
	return nil
}
