package policy

import (
	"slices"
	"strings"
)

// ValidateLabels builds the final label set for a request: mandatory platform
// labels, then the team's required labels, then every requested label the
// policy admits. The first requested label that is neither allowed literally
// nor fully matched by a pattern rejects the whole request.
//
// Requested labels equal to a mandatory label are ignored. The result is
// de-duplicated case-insensitively, keeping the first occurrence.
func ValidateLabels(p *EffectivePolicy, requested []string) ([]string, error) {
	out := make([]string, 0, len(p.MandatoryLabels)+len(p.RequiredLabels)+len(requested))
	seen := make(map[string]struct{}, cap(out))

	add := func(label string) {
		k := strings.ToLower(label)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, label)
	}

	mandatory := make(map[string]struct{}, len(p.MandatoryLabels))
	for _, l := range p.MandatoryLabels {
		mandatory[strings.ToLower(l)] = struct{}{}
		add(l)
	}
	for _, l := range p.RequiredLabels {
		add(l)
	}

	for _, label := range requested {
		if _, ok := mandatory[strings.ToLower(label)]; ok {
			continue
		}
		if !p.admits(label) {
			return nil, &PolicyError{
				Label:         label,
				Scope:         p.Scope,
				Subject:       p.Subject,
				AllowedLabels: p.AllowedLabels,
				Patterns:      p.Patterns,
			}
		}
		add(label)
	}

	return out, nil
}

func (p *EffectivePolicy) admits(label string) bool {
	if label == "" {
		return false
	}
	if slices.Contains(p.RequiredLabels, label) || slices.Contains(p.AllowedLabels, label) {
		return true
	}
	for _, re := range p.matchers() {
		if re.MatchString(label) {
			return true
		}
	}
	return false
}

// LabelsEqual compares two label sets ignoring order and case.
func LabelsEqual(a, b []string) bool {
	return slices.Equal(normalizeSet(a), normalizeSet(b))
}

func normalizeSet(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, strings.ToLower(l))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
