package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"lifeswap/internal/domain"
	"lifeswap/internal/events"
	"lifeswap/internal/repo"
)

// CreateAPIKey mints a key for a user. The plaintext is returned once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if userID == "" {
		return domain.APIKey{}, "", fmt.Errorf("user is required: %w", domain.ErrInvalidInput)
	}
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := "lsk_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.events().Append(ctx, tx, events.APIKeyCreated, "", "api_key", key.ID, userID, events.EventPayload{"name": name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// ListAPIKeys returns the keys owned by userID. Hashes are never exposed.
func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	if userID == "" {
		return nil, fmt.Errorf("user is required: %w", domain.ErrInvalidInput)
	}
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// RevokeAPIKey deletes one of userID's keys. A key owned by someone else is
// reported as not found.
func (e Engine) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	if userID == "" || keyID == "" {
		return fmt.Errorf("user and key are required: %w", domain.ErrInvalidInput)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, userID, keyID); err != nil {
		return fmt.Errorf("api key %s: %w", keyID, err)
	}
	if err := e.events().Append(ctx, tx, events.APIKeyRevoked, "", "api_key", keyID, userID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("api key revoked", "key_id", keyID, "user_id", userID)
	return nil
}
