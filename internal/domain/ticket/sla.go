package ticket

import "time"

// SLAPolicy holds the deadline offsets configured for one ticket type,
// measured from ticket creation. A zero offset means the type carries no
// deadline of that kind.
type SLAPolicy struct {
	ResponseWithin time.Duration `json:"response_within" koanf:"response_within"`
	ResolveWithin  time.Duration `json:"resolve_within" koanf:"resolve_within"`
}

// HasResponse reports whether the policy defines a response deadline
func (p SLAPolicy) HasResponse() bool {
	return p.ResponseWithin > 0
}

// HasResolution reports whether the policy defines a resolution deadline
func (p SLAPolicy) HasResolution() bool {
	return p.ResolveWithin > 0
}

// ResponseDeadline computes the response deadline for a ticket created at
// the given instant, nil when the policy has none
func (p SLAPolicy) ResponseDeadline(createdAt time.Time) *time.Time {
	if !p.HasResponse() {
		return nil
	}
	d := createdAt.Add(p.ResponseWithin)
	return &d
}

// ResolutionDeadline computes the resolution deadline for a ticket created
// at the given instant, nil when the policy has none
func (p SLAPolicy) ResolutionDeadline(createdAt time.Time) *time.Time {
	if !p.HasResolution() {
		return nil
	}
	d := createdAt.Add(p.ResolveWithin)
	return &d
}

// SLAPolicySet maps ticket types to their configured policies. Types
// without an entry have no SLA, which the normalizer turns into nil
// deadlines and false breach flags.
type SLAPolicySet map[Type]SLAPolicy

// PolicyFor looks up the policy for a type
func (s SLAPolicySet) PolicyFor(t Type) (SLAPolicy, bool) {
	p, ok := s[t]
	return p, ok
}

// EvaluateBreach decides whether a deadline was missed. With no deadline
// there is no breach. A completed event compares its instant against the
// deadline; an incomplete one compares the evaluation cutoff, so a ticket
// sitting past its deadline already counts as breached. The returned
// overage is the exact time beyond the deadline, nil when not breached.
func EvaluateBreach(deadline, completedAt *time.Time, cutoff time.Time) (bool, *time.Duration) {
	if deadline == nil {
		return false, nil
	}
	at := cutoff
	if completedAt != nil {
		at = *completedAt
	}
	if !at.After(*deadline) {
		return false, nil
	}
	over := at.Sub(*deadline)
	return true, &over
}
