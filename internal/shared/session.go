package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenStore issues and resolves bearer tokens backed by Redis. The portal
// frontend is a separate application, so sessions travel in the
// Authorization header rather than cookies.
type TokenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type tokenPayload struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	SellerNames []string `json:"seller_names,omitempty"`
	ClientIDs   []string `json:"client_ids,omitempty"`
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, prefix string, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, prefix: prefix, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (ts *TokenStore) TTL() time.Duration {
	return ts.ttl
}

// Issue creates a token for the principal and stores it with the configured TTL.
func (ts *TokenStore) Issue(ctx context.Context, p *Principal) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(tokenPayload{
		UserID:      p.UserID,
		Email:       p.Email,
		Name:        p.Name,
		Role:        string(p.Role),
		SellerNames: p.SellerNames,
		ClientIDs:   p.ClientIDs,
	})
	if err != nil {
		return "", fmt.Errorf("shared: marshal token payload: %w", err)
	}
	if err := ts.client.Set(ctx, ts.key(token), payload, ts.ttl).Err(); err != nil {
		return "", fmt.Errorf("shared: store token: %w", err)
	}
	return token, nil
}

// Resolve looks up the principal for a token. ErrUnauthorized when unknown or expired.
func (ts *TokenStore) Resolve(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	raw, err := ts.client.Get(ctx, ts.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("shared: resolve token: %w", err)
	}
	var stored tokenPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("shared: decode token payload: %w", err)
	}
	return &Principal{
		UserID:      stored.UserID,
		Email:       stored.Email,
		Name:        stored.Name,
		Role:        Role(stored.Role),
		SellerNames: stored.SellerNames,
		ClientIDs:   stored.ClientIDs,
	}, nil
}

// Revoke removes a token.
func (ts *TokenStore) Revoke(ctx context.Context, token string) error {
	return ts.client.Del(ctx, ts.key(token)).Err()
}

func (ts *TokenStore) key(token string) string {
	return ts.prefix + ":" + token
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
