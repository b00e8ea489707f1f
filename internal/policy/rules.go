package policy

import (
	"fmt"
	"strings"
)

const maxLabelLength = 256

// ValidateUserPolicy checks administrator input before it is stored.
func ValidateUserPolicy(p *UserPolicy) error {
	if strings.TrimSpace(p.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidPolicy)
	}
	if p.MaxConcurrentAgents < 0 {
		return fmt.Errorf("%w: max_concurrent_agents must be >= 0", ErrInvalidPolicy)
	}
	if err := validateLabelList("allowed_labels", p.AllowedLabels); err != nil {
		return err
	}
	return validatePatterns("allowed_label_patterns", p.AllowedLabelPatterns)
}

func ValidateTeam(t *Team) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: team name is required", ErrInvalidPolicy)
	}
	if t.MaxConcurrentAgents < 0 {
		return fmt.Errorf("%w: max_concurrent_agents must be >= 0", ErrInvalidPolicy)
	}
	if err := validateLabelList("required_labels", t.RequiredLabels); err != nil {
		return err
	}
	return validatePatterns("optional_label_patterns", t.OptionalLabelPatterns)
}

func ValidateRole(r Role) error {
	if r != RoleMember && r != RoleAdmin {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidPolicy, r)
	}
	return nil
}

func validateLabelList(field string, labels []string) error {
	for _, l := range labels {
		if err := ValidateLabelSyntax(l); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, field, err)
		}
	}
	return nil
}

func validatePatterns(field string, patterns []string) error {
	for _, p := range patterns {
		if p == "" {
			return fmt.Errorf("%w: %s: empty pattern", ErrInvalidPolicy, field)
		}
		if _, err := compileAnchored(p); err != nil {
			return fmt.Errorf("%w: %s: pattern %q: %v", ErrInvalidPolicy, field, p, err)
		}
	}
	return nil
}

// ValidateLabelSyntax rejects labels the platform would refuse or that would
// break the comma-separated configuration command.
func ValidateLabelSyntax(label string) error {
	switch {
	case label == "":
		return fmt.Errorf("empty label")
	case len(label) > maxLabelLength:
		return fmt.Errorf("label %q exceeds %d characters", label, maxLabelLength)
	case strings.ContainsAny(label, ", \t\n"):
		return fmt.Errorf("label %q contains whitespace or commas", label)
	}
	return nil
}
