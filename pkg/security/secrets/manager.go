package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
)

// secretRefRegex matches ${secret:name} references.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through an ordered provider chain with caching.
type Manager struct {
	providers []SecretProvider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager. Providers are consulted in order.
func NewManager(providers []SecretProvider, cacheTTL time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		providers: providers,
		cache:     NewCache(cacheTTL),
		logger:    logger.With("component", "secrets"),
	}
}

// NewManagerFromConfig builds the provider chain described by cfg. With no
// providers configured, a single env provider with the default prefix is used.
func NewManagerFromConfig(cfg config.SecretsConfig, logger *slog.Logger) (*Manager, error) {
	var providers []SecretProvider
	for i, pc := range cfg.Providers {
		switch pc.Type {
		case "env":
			providers = append(providers, NewEnvProvider(pc.Prefix))
		case "file":
			fp, err := NewFileProvider(pc.Path, pc.Watch, logger)
			if err != nil {
				return nil, fmt.Errorf("secrets provider %d: %w", i, err)
			}
			providers = append(providers, fp)
		default:
			return nil, fmt.Errorf("secrets provider %d: unknown type %q", i, pc.Type)
		}
	}
	if len(providers) == 0 {
		providers = append(providers, NewEnvProvider(config.DefaultSecretsEnvPrefix))
	}
	return NewManager(providers, cfg.CacheTTL, logger), nil
}

// GetSecret returns the first value any provider yields for name. A
// provider reporting ErrNotFound is skipped; any other provider error is
// remembered and returned if no later provider succeeds.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	var lastErr error
	for _, provider := range m.providers {
		value, err := provider.GetSecret(ctx, name)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				lastErr = err
				m.logger.Warn("secret provider failed", "provider", provider.Provider(), "error", err)
			}
			continue
		}
		m.cache.Set(name, value)
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ResolveReferences replaces every ${secret:name} in input. Unresolvable
// references are left in place and reported together in the error.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var errs []error

	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefRegex.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})

	if len(errs) > 0 {
		return output, fmt.Errorf("failed to resolve secret references: %w", errors.Join(errs...))
	}
	return output, nil
}

// ResolveFields resolves references in place for each non-empty field.
func (m *Manager) ResolveFields(ctx context.Context, fields ...*string) error {
	for _, f := range fields {
		if f == nil || *f == "" {
			continue
		}
		resolved, err := m.ResolveReferences(ctx, *f)
		if err != nil {
			return err
		}
		*f = resolved
	}
	return nil
}

// Refresh refreshes every refreshable provider and clears the cache.
func (m *Manager) Refresh(ctx context.Context) error {
	var errs []error
	for _, provider := range m.providers {
		if rp, ok := provider.(RefreshableProvider); ok {
			if err := rp.Refresh(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", provider.Provider(), err))
			}
		}
	}
	m.cache.Clear()
	return errors.Join(errs...)
}

// Close releases provider resources such as file watchers.
func (m *Manager) Close() error {
	var errs []error
	for _, provider := range m.providers {
		if c, ok := provider.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// HasReference reports whether s contains a ${secret:name} reference.
func HasReference(s string) bool {
	return secretRefRegex.MatchString(s)
}
