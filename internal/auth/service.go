package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/EternisAI/silo-runners/internal/policy"
)

var ErrUnknownIdentity = errors.New("identity has no policy or team membership")

// Service mints bearer tokens for identities the broker knows about.
type Service struct {
	repo   policy.Repository
	config Config
}

func NewService(repo policy.Repository, config Config) *Service {
	return &Service{
		repo:   repo,
		config: config,
	}
}

// IssueToken signs a token for subject. Non-admin subjects must hold a user
// policy or an active team membership.
func (s *Service) IssueToken(ctx context.Context, subject string, admin bool) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrUnknownIdentity)
	}

	if !admin {
		known, err := s.known(ctx, subject)
		if err != nil {
			return "", err
		}
		if !known {
			return "", ErrUnknownIdentity
		}
	}

	token, err := GenerateToken(s.config, subject, admin)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

func (s *Service) known(ctx context.Context, subject string) (bool, error) {
	if _, err := s.repo.GetUserPolicy(ctx, subject); err == nil {
		return true, nil
	} else if !errors.Is(err, policy.ErrPolicyNotFound) {
		return false, fmt.Errorf("query policy: %w", err)
	}

	teams, err := s.repo.ActiveTeams(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("query teams: %w", err)
	}
	return len(teams) > 0, nil
}
