package policy

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mandatory = []string{"self-hosted", "linux", "x64"}

func userPolicy(allowed, patterns []string) *EffectivePolicy {
	return &EffectivePolicy{
		Scope:               ScopeUser,
		Subject:             "alice",
		MandatoryLabels:     mandatory,
		AllowedLabels:       allowed,
		Patterns:            patterns,
		MaxConcurrentAgents: 1,
	}
}

func TestValidateLabels_ExampleScenario(t *testing.T) {
	p := userPolicy([]string{"linux", "docker"}, []string{"team-.*"})

	_, err := ValidateLabels(p, []string{"docker", "team-x", "gpu"})
	require.Error(t, err)
	var pe *PolicyError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "gpu", pe.Label)
	assert.ErrorIs(t, err, ErrPolicyViolation)

	labels, err := ValidateLabels(p, []string{"docker", "team-x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"self-hosted", "linux", "x64", "docker", "team-x"}, labels)
}

func TestValidateLabels_MandatoryRequestedIgnored(t *testing.T) {
	p := userPolicy(nil, nil)

	labels, err := ValidateLabels(p, []string{"Self-Hosted", "LINUX", "x64"})
	require.NoError(t, err)
	assert.Equal(t, mandatory, labels)
}

func TestValidateLabels_DenyByDefault(t *testing.T) {
	p := &EffectivePolicy{Scope: ScopeDefault, Subject: "bob", MandatoryLabels: mandatory}

	labels, err := ValidateLabels(p, nil)
	require.NoError(t, err)
	assert.Equal(t, mandatory, labels)

	_, err = ValidateLabels(p, []string{"docker"})
	assert.ErrorIs(t, err, ErrPolicyViolation)
}

func TestValidateLabels_TeamRequiredLabels(t *testing.T) {
	p := &EffectivePolicy{
		Scope:           ScopeTeam,
		Subject:         "t1",
		TeamID:          "t1",
		MandatoryLabels: mandatory,
		RequiredLabels:  []string{"team-ml", "gpu"},
		Patterns:        []string{"cuda-[0-9]+"},
	}

	labels, err := ValidateLabels(p, []string{"cuda-12", "gpu"})
	require.NoError(t, err)
	assert.Equal(t, []string{"self-hosted", "linux", "x64", "team-ml", "gpu", "cuda-12"}, labels)

	_, err = ValidateLabels(p, []string{"cuda-12a"})
	assert.ErrorIs(t, err, ErrPolicyViolation)
}

func TestValidateLabels_PatternsAreAnchored(t *testing.T) {
	p := userPolicy(nil, []string{"team-.*", "a|b"})

	for _, label := range []string{"xteam-a", "ab", "a-b"} {
		_, err := ValidateLabels(p, []string{label})
		assert.ErrorIs(t, err, ErrPolicyViolation, label)
	}
	for _, label := range []string{"team-a", "a", "b"} {
		_, err := ValidateLabels(p, []string{label})
		assert.NoError(t, err, label)
	}
}

func TestValidateLabels_AllowedIsExactMatch(t *testing.T) {
	p := userPolicy([]string{"docker"}, nil)

	_, err := ValidateLabels(p, []string{"Docker"})
	assert.ErrorIs(t, err, ErrPolicyViolation)
}

func TestValidateLabels_FirstBadLabelReported(t *testing.T) {
	p := userPolicy([]string{"docker"}, nil)

	_, err := ValidateLabels(p, []string{"docker", "gpu", "arm"})
	var pe *PolicyError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "gpu", pe.Label)
}

func TestValidateLabels_EmptyLabelRejected(t *testing.T) {
	p := userPolicy(nil, []string{".*"})

	_, err := ValidateLabels(p, []string{""})
	assert.ErrorIs(t, err, ErrPolicyViolation)
}

func TestValidateLabels_Dedupe(t *testing.T) {
	p := userPolicy([]string{"docker", "Docker"}, nil)

	labels, err := ValidateLabels(p, []string{"docker", "Docker", "docker"})
	require.NoError(t, err)
	assert.Equal(t, []string{"self-hosted", "linux", "x64", "docker"}, labels)
}

func TestLabelsEqual(t *testing.T) {
	assert.True(t, LabelsEqual([]string{"a", "B"}, []string{"b", "A"}))
	assert.True(t, LabelsEqual(nil, []string{}))
	assert.False(t, LabelsEqual([]string{"a"}, []string{"a", "b"}))
}

func TestValidateLabels_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	label := gen.OneConstOf("docker", "gpu", "team-a", "team-b", "linux", "LINUX", "x64", "arm", "")
	allowed := []string{"docker", "linux"}
	patterns := []string{"team-.*"}

	properties.Property("validation is deterministic", prop.ForAll(
		func(requested []string) bool {
			p := userPolicy(allowed, patterns)
			a, errA := ValidateLabels(p, requested)
			b, errB := ValidateLabels(p, requested)
			if (errA == nil) != (errB == nil) {
				return false
			}
			if errA != nil {
				return errA.Error() == errB.Error()
			}
			return slices.Equal(a, b)
		},
		gen.SliceOf(label),
	))

	properties.Property("accepted output starts with mandatory labels and has no duplicates", prop.ForAll(
		func(requested []string) bool {
			out, err := ValidateLabels(userPolicy(allowed, patterns), requested)
			if err != nil {
				return true
			}
			if !slices.Equal(out[:len(mandatory)], mandatory) {
				return false
			}
			seen := map[string]bool{}
			for _, l := range out {
				k := strings.ToLower(l)
				if seen[k] {
					return false
				}
				seen[k] = true
			}
			return true
		},
		gen.SliceOf(label),
	))

	properties.Property("rejection names a label that is not admitted", prop.ForAll(
		func(requested []string) bool {
			p := userPolicy(allowed, patterns)
			_, err := ValidateLabels(p, requested)
			var pe *PolicyError
			if !errors.As(err, &pe) {
				return err == nil
			}
			return slices.Contains(requested, pe.Label) && !p.admits(pe.Label)
		},
		gen.SliceOf(label),
	))

	properties.TestingRun(t)
}
