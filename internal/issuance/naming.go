package issuance

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/store"
)

const maxNameAttempts = 5

func randomSuffix() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate name suffix: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// resolveName returns the exact name when given, otherwise the first
// prefix-xxxxxx candidate not held by a live agent.
func (e *Engine) resolveName(ctx context.Context, req Request) (string, error) {
	if req.Name != "" {
		taken, err := e.nameTaken(ctx, req.Name)
		if err != nil {
			return "", err
		}
		if taken {
			return "", &NameConflictError{Name: req.Name}
		}
		return req.Name, nil
	}

	if req.NamePrefix == "" {
		return "", ErrNameRequired
	}

	for range maxNameAttempts {
		suffix, err := e.suffix()
		if err != nil {
			return "", err
		}
		candidate := req.NamePrefix + "-" + suffix
		taken, err := e.nameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", &NameConflictError{Prefix: req.NamePrefix}
}

func (e *Engine) nameTaken(ctx context.Context, name string) (bool, error) {
	_, err := e.store.GetLiveAgentByName(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, &StoreError{Op: "look up agent name", Err: err}
	}
}

// HashSecret returns the hex SHA-256 digest stored in place of a bootstrap
// secret.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// ConfigurationCommand renders the command a host runs to attach itself to
// the platform with the issued credential.
func ConfigurationCommand(platformURL string, d *agents.Descriptor, disableUpdate bool) string {
	if d.IssuanceMode == agents.ModeJIT {
		return "./run.sh --jitconfig " + d.JitConfig
	}

	var b strings.Builder
	fmt.Fprintf(&b, "./config.sh --url %s --token %s --name %s --unattended", platformURL, d.RegistrationToken, d.Name)
	if len(d.Labels) > 0 {
		b.WriteString(" --labels ")
		b.WriteString(strings.Join(d.Labels, ","))
	}
	if d.RunnerGroupID > 0 {
		fmt.Fprintf(&b, " --runnergroup %d", d.RunnerGroupID)
	}
	if d.Ephemeral {
		b.WriteString(" --ephemeral")
	}
	if disableUpdate {
		b.WriteString(" --disableupdate")
	}
	return b.String()
}
