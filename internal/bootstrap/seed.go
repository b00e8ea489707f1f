// Package bootstrap loads administrator-maintained policy seed files and
// applies them to the store at startup.
package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/EternisAI/silo-runners/internal/policy"
	"gopkg.in/yaml.v3"
)

const (
	AdminsTeam  = "admins"
	SeedActor   = "system:bootstrap"
	adminsQuota = 1000
)

type Config struct {
	File string `mapstructure:"file"`
}

type Seed struct {
	Admins   AdminsSeed   `yaml:"admins"`
	Policies []PolicySeed `yaml:"policies"`
	Teams    []TeamSeed   `yaml:"teams"`
}

// AdminsSeed describes the permissive admins team. It is only created when
// Members is non-empty.
type AdminsSeed struct {
	Members             []string `yaml:"members"`
	MaxConcurrentAgents int      `yaml:"max_concurrent_agents"`
}

type PolicySeed struct {
	Identity             string   `yaml:"identity"`
	AllowedLabels        []string `yaml:"allowed_labels"`
	AllowedLabelPatterns []string `yaml:"allowed_label_patterns"`
	MaxConcurrentAgents  int      `yaml:"max_concurrent_agents"`
	Description          string   `yaml:"description"`
}

type TeamSeed struct {
	Name                  string       `yaml:"name"`
	Description           string       `yaml:"description"`
	RequiredLabels        []string     `yaml:"required_labels"`
	OptionalLabelPatterns []string     `yaml:"optional_label_patterns"`
	MaxConcurrentAgents   int          `yaml:"max_concurrent_agents"`
	Active                *bool        `yaml:"active"`
	Members               []MemberSeed `yaml:"members"`
}

type MemberSeed struct {
	User string      `yaml:"user"`
	Role policy.Role `yaml:"role"`
}

func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document. Unknown keys are rejected so that typos do
// not silently drop policy.
func Parse(data []byte) (*Seed, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Seed
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Seed) Validate() error {
	identities := make(map[string]bool, len(s.Policies))
	for i := range s.Policies {
		p := s.Policies[i].userPolicy()
		if err := policy.ValidateUserPolicy(p); err != nil {
			return fmt.Errorf("policies[%d]: %w", i, err)
		}
		if identities[p.Identity] {
			return fmt.Errorf("policies[%d]: %w: duplicate identity %q", i, policy.ErrInvalidPolicy, p.Identity)
		}
		identities[p.Identity] = true
	}

	names := map[string]bool{}
	if len(s.Admins.Members) > 0 {
		names[AdminsTeam] = true
	}
	for i := range s.Teams {
		t := s.Teams[i]
		if err := policy.ValidateTeam(t.team()); err != nil {
			return fmt.Errorf("teams[%d]: %w", i, err)
		}
		if names[t.Name] {
			return fmt.Errorf("teams[%d]: %w: duplicate team %q", i, policy.ErrInvalidPolicy, t.Name)
		}
		names[t.Name] = true
		for j, m := range t.Members {
			if m.User == "" {
				return fmt.Errorf("teams[%d].members[%d]: %w: user is required", i, j, policy.ErrInvalidPolicy)
			}
			if m.Role != "" {
				if err := policy.ValidateRole(m.Role); err != nil {
					return fmt.Errorf("teams[%d].members[%d]: %w", i, j, err)
				}
			}
		}
	}
	if s.Admins.MaxConcurrentAgents < 0 {
		return fmt.Errorf("admins: %w: max_concurrent_agents must be >= 0", policy.ErrInvalidPolicy)
	}
	return nil
}

func (p PolicySeed) userPolicy() *policy.UserPolicy {
	return &policy.UserPolicy{
		Identity:             p.Identity,
		AllowedLabels:        p.AllowedLabels,
		AllowedLabelPatterns: p.AllowedLabelPatterns,
		MaxConcurrentAgents:  p.MaxConcurrentAgents,
		Description:          p.Description,
	}
}

func (t TeamSeed) team() *policy.Team {
	active := true
	if t.Active != nil {
		active = *t.Active
	}
	return &policy.Team{
		Name:                  t.Name,
		Description:           t.Description,
		RequiredLabels:        t.RequiredLabels,
		OptionalLabelPatterns: t.OptionalLabelPatterns,
		MaxConcurrentAgents:   t.MaxConcurrentAgents,
		IsActive:              active,
	}
}

func (a AdminsSeed) team() TeamSeed {
	quota := a.MaxConcurrentAgents
	if quota == 0 {
		quota = adminsQuota
	}
	members := make([]MemberSeed, 0, len(a.Members))
	for _, u := range a.Members {
		members = append(members, MemberSeed{User: u, Role: policy.RoleAdmin})
	}
	return TeamSeed{
		Name:                  AdminsTeam,
		Description:           "System administrators team",
		OptionalLabelPatterns: []string{".*"},
		MaxConcurrentAgents:   quota,
		Members:               members,
	}
}
