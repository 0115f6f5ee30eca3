package scan

import (
	"context"

	"github.com/zombor/arcade-scan/internal/scanning"
)

// Lookup resolves a decoded barcode against the business catalog
type Lookup interface {
	Resolve(ctx context.Context, category scanning.Category, code string) error
}

// Action is what the session does with a classified result
type Action int

const (
	Accept Action = iota
	ResumeAfterDelay
	AcceptWithWarning
)

func (a Action) String() string {
	switch a {
	case Accept:
		return "accept"
	case ResumeAfterDelay:
		return "resume_after_delay"
	case AcceptWithWarning:
		return "accept_with_warning"
	default:
		return "unknown"
	}
}

// Decision is the router's verdict. Err explains ResumeAfterDelay and AcceptWithWarning.
type Decision struct {
	Action Action
	Err    error
}

// Router decides accept, resume or mismatch for classified scans
type Router struct {
	lookup Lookup
}

// NewRouter creates a Router. A nil lookup accepts every matching scan.
func NewRouter(lookup Lookup) *Router {
	return &Router{lookup: lookup}
}

// Route looks up scans that satisfy mode and forwards everything else with a warning
func (r *Router) Route(ctx context.Context, c scanning.Classified, mode Mode) Decision {
	if !mode.Matches(c.Category) {
		return Decision{
			Action: AcceptWithWarning,
			Err:    &MismatchError{Mode: mode, Category: c.Category, Text: c.Candidate.Text},
		}
	}

	if r.lookup == nil {
		return Decision{Action: Accept}
	}

	if err := r.lookup.Resolve(ctx, c.Category, c.Candidate.Text); err != nil {
		return Decision{
			Action: ResumeAfterDelay,
			Err:    &LookupError{Category: c.Category, Code: c.Candidate.Text, Err: err},
		}
	}
	return Decision{Action: Accept}
}
