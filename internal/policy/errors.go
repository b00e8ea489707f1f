package policy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPolicyViolation = errors.New("label policy violation")
	ErrNotAMember      = errors.New("not a member of team")
	ErrTeamRequired    = errors.New("team context required")
	ErrPolicyNotFound  = errors.New("policy not found")
	ErrTeamNotFound    = errors.New("team not found")
	ErrInvalidPolicy   = errors.New("invalid policy")
)

// PolicyError names the first requested label that the policy rejected.
type PolicyError struct {
	Label         string
	Scope         Scope
	Subject       string
	AllowedLabels []string
	Patterns      []string
}

func (e *PolicyError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("empty label is not permitted by %s policy", e.Scope)
	}
	return fmt.Sprintf("label %q is not permitted by %s policy", e.Label, e.Scope)
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyViolation
}

type NotAMemberError struct {
	TeamID string
}

func (e *NotAMemberError) Error() string {
	return fmt.Sprintf("caller is not an active member of active team %s", e.TeamID)
}

func (e *NotAMemberError) Is(target error) bool {
	return target == ErrNotAMember
}

// TeamRequiredError lists the teams the caller may provision under.
type TeamRequiredError struct {
	Teams []TeamRef
}

func (e *TeamRequiredError) Error() string {
	names := make([]string, len(e.Teams))
	for i, t := range e.Teams {
		names[i] = t.Name
	}
	return fmt.Sprintf("caller belongs to teams [%s]; a team must be selected", strings.Join(names, ", "))
}

func (e *TeamRequiredError) Is(target error) bool {
	return target == ErrTeamRequired
}
