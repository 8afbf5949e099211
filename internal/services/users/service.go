// -----------------------------------------------------------------------
// Users service - validation-user directory for submission authorization
// -----------------------------------------------------------------------

package users

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
)

// Service resolves submitting users to their validation-user records. A
// missing record is a configuration problem, not a transient fault: the
// worker fails the submission immediately and the sweeper never retries it.
type Service struct {
	store  interfaces.RecordStore
	logger arbor.ILogger
}

// NewService creates a new users service
func NewService(store interfaces.RecordStore, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Resolve looks up a user's validation record by identity.
// Returns models.ErrUserNotRegistered when no record exists.
func (s *Service) Resolve(ctx context.Context, identity string) (*models.ValidationUser, error) {
	key := strings.ToLower(strings.TrimSpace(identity))

	var user models.ValidationUser
	err := s.store.Get(ctx, interfaces.KindUser, key, &user)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, models.ErrUserNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", identity, err)
	}
	return &user, nil
}

// Register stores or updates a validation-user record
func (s *Service) Register(ctx context.Context, user *models.ValidationUser) error {
	key := strings.ToLower(strings.TrimSpace(user.Identity))
	if key == "" {
		return fmt.Errorf("user identity cannot be empty")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if err := s.store.Put(ctx, interfaces.KindUser, key, user); err != nil {
		return fmt.Errorf("failed to register user %s: %w", user.Identity, err)
	}

	s.logger.Debug().Str("identity", user.Identity).Msg("Validation user registered")
	return nil
}

// userFile represents one [section] of a users TOML file
// Format:
//
//	["jane.doe@example.com"]
//	display_name = "Jane Doe"
//	email = "jane.doe@example.com"
//	role = "estimator"
type userFile struct {
	DisplayName string `toml:"display_name"`
	Email       string `toml:"email"`
	Role        string `toml:"role"`
}

// LoadFromDir seeds the user directory from ./users/*.toml files at startup.
// File errors are logged and skipped so one malformed file cannot block startup.
func (s *Service) LoadFromDir(ctx context.Context, dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil || !info.IsDir() {
		s.logger.Debug().Str("dir", dirPath).Msg("Users directory not found, skipping user load")
		return nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read users directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}

		path := filepath.Join(dirPath, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("Failed to read user file")
			continue
		}

		var users map[string]userFile
		if err := toml.Unmarshal(content, &users); err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("Failed to parse user file")
			continue
		}

		for identity, u := range users {
			user := &models.ValidationUser{
				Identity:    identity,
				DisplayName: u.DisplayName,
				Email:       u.Email,
				Role:        u.Role,
			}
			if err := s.Register(ctx, user); err != nil {
				s.logger.Warn().Err(err).Str("identity", identity).Msg("Failed to register user from file")
				continue
			}
			loaded++
		}
	}

	s.logger.Info().Int("loaded", loaded).Str("dir", dirPath).Msg("Validation users loaded")
	return nil
}
