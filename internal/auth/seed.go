package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for a generated owner password.
const seedPasswordBytes = 16

// SeedOwner creates the initial owner account when the user table is empty.
// If password is empty one is generated, logged once and returned.
// Returns "" when seeding was skipped or the password was supplied.
func SeedOwner(ctx context.Context, userRepo UserRepository, username, password string, logger *slog.Logger) (string, error) {
	count, err := userRepo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping owner seed")
		return "", nil
	}

	if username == "" {
		username = "admin"
	}
	if !IsValidUsername(username) {
		return "", fmt.Errorf("invalid owner username %q", username)
	}

	generated := ""
	if password == "" {
		buf := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(buf); err != nil { //nolint:govet // shadow: err re-declared in nested scope
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(buf)
		generated = password
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	owner := &User{
		Username:     username,
		Firstname:    "System",
		Lastname:     "Owner",
		PasswordHash: hash,
		Role:         RoleOwner,
		IsActive:     true,
	}
	if err := userRepo.Create(ctx, owner); err != nil {
		return "", fmt.Errorf("creating seed owner: %w", err)
	}

	if generated != "" {
		logger.Warn("seed owner account created",
			"username", username,
			"password", generated,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed owner account created", "username", username)
	}
	return generated, nil
}
