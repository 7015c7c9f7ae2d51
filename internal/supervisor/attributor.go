package supervisor

import "strings"

// Attributor decides which registered action, if any, owns a failure.
// registered is in registration order; nil means the failure is unattributed.
type Attributor interface {
	Attribute(f Failure, registered []*Action) *Action
}

// TraceAttributor attributes a failure by searching its frames for action
// root paths. Frames are scanned in order and the first frame containing any
// root decides. Within that frame the root found at the earliest position
// wins, and equal positions go to the action registered first.
//
// Substring matching is a heuristic: when one root is a prefix of another
// (/skills/foo and /skills/foo-bar) a frame under the longer root also
// matches the shorter one.
type TraceAttributor struct{}

// Attribute implements Attributor.
func (TraceAttributor) Attribute(f Failure, registered []*Action) *Action {
	for _, frame := range f.Frames {
		var owner *Action
		ownerAt := -1
		for _, a := range registered {
			if a.Root == "" {
				continue
			}
			at := strings.Index(frame, a.Root)
			if at < 0 {
				continue
			}
			if owner == nil || at < ownerAt {
				owner, ownerAt = a, at
			}
		}
		if owner != nil {
			return owner
		}
	}
	return nil
}

// OriginAttributor uses the Origin tag runners put on the failures of the
// tasks they launched. Failures without a known origin go to Fallback.
type OriginAttributor struct {
	Fallback Attributor
}

// Attribute implements Attributor.
func (o OriginAttributor) Attribute(f Failure, registered []*Action) *Action {
	if f.Origin != "" {
		for _, a := range registered {
			if a.Name == f.Origin {
				return a
			}
		}
	}
	if o.Fallback != nil {
		return o.Fallback.Attribute(f, registered)
	}
	return nil
}

// NewAttributor returns the attributor for a strategy name: "trace" (default)
// or "origin". Unknown names return ok == false.
func NewAttributor(strategy string) (a Attributor, ok bool) {
	switch strategy {
	case "", "trace":
		return TraceAttributor{}, true
	case "origin":
		return OriginAttributor{Fallback: TraceAttributor{}}, true
	default:
		return nil, false
	}
}
