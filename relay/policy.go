package relay

import (
	"fmt"
	"strings"
)

// A Policy determines how a [Relay] behaves when its consumer falls behind
// its producer.
type Policy int

const (
	// Unspecified buffers up to the relay capacity. What happens to a value
	// emitted while the buffer is full is deliberately left undefined: the
	// relay may discard the value, or it may fail as ErrorOnOverflow does, and
	// the choice may differ from one overflow to the next. Callers must not
	// depend on either outcome.
	Unspecified Policy = iota

	// Unbounded buffers every value. The buffer grows without limit while the
	// consumer is behind, so memory use is bounded only by how far behind the
	// consumer falls.
	Unbounded

	// KeepLatest retains only the most recently emitted value. A new value
	// replaces any value the consumer has not yet received.
	KeepLatest

	// DropExcess buffers up to the relay capacity, and discards values
	// emitted while the buffer is full.
	DropExcess

	// ErrorOnOverflow buffers up to the relay capacity. A value emitted while
	// the buffer is full puts the relay into a terminal failure state.
	ErrorOnOverflow
)

var policyNames = [...]string{
	Unspecified:     "unspecified",
	Unbounded:       "unbounded",
	KeepLatest:      "latest",
	DropExcess:      "drop",
	ErrorOnOverflow: "error",
}

func (p Policy) String() string {
	if p >= 0 && int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Bounded reports whether p limits the relay buffer to its capacity.
func (p Policy) Bounded() bool {
	return p == Unspecified || p == DropExcess || p == ErrorOnOverflow
}

// ParsePolicy returns the policy named by s. In addition to the names
// reported by [Policy.String], it accepts "buffer" for Unbounded and
// "missing" for Unspecified. Case is not significant.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unspecified", "missing":
		return Unspecified, nil
	case "unbounded", "buffer":
		return Unbounded, nil
	case "latest":
		return KeepLatest, nil
	case "drop":
		return DropExcess, nil
	case "error":
		return ErrorOnOverflow, nil
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// Set implements the flag.Value interface.
func (p *Policy) Set(s string) error {
	v, err := ParsePolicy(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Type implements the pflag.Value interface.
func (*Policy) Type() string { return "policy" }
