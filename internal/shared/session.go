package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound indicates a missing or expired session token.
var ErrSessionNotFound = errors.New("session not found")

// SessionManager stores bearer-token sessions in Redis. Tokens are the
// session id plus an HMAC signature so forged ids never reach Redis.
type SessionManager struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	secret []byte
}

type sessionPayload struct {
	UserID   int64   `json:"user_id"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	Stations []int64 `json:"stations,omitempty"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, prefix, secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{client: client, prefix: prefix, ttl: ttl, secret: []byte(secret)}
}

// Create persists a session for the actor and returns the bearer token.
func (m *SessionManager) Create(ctx context.Context, actor Actor) (string, error) {
	if m == nil {
		return "", errors.New("session manager not initialised")
	}
	id := uuid.NewString()
	payload, err := json.Marshal(sessionPayload{
		UserID:   actor.UserID,
		Name:     actor.Name,
		Role:     string(actor.Role),
		Stations: actor.Stations,
	})
	if err != nil {
		return "", err
	}
	if err := m.client.Set(ctx, m.key(id), payload, m.ttl).Err(); err != nil {
		return "", err
	}
	return id + "." + m.sign(id), nil
}

// Resolve validates the token and loads the actor it belongs to.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*Actor, error) {
	if m == nil {
		return nil, errors.New("session manager not initialised")
	}
	id, sig, ok := strings.Cut(token, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(m.sign(id))) {
		return nil, ErrSessionNotFound
	}
	raw, err := m.client.Get(ctx, m.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	// Sliding expiry: any authenticated request refreshes the TTL.
	_ = m.client.Expire(ctx, m.key(id), m.ttl).Err()
	return &Actor{
		UserID:   payload.UserID,
		Name:     payload.Name,
		Role:     Role(payload.Role),
		Stations: payload.Stations,
	}, nil
}

// Destroy removes the session behind the token.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if m == nil {
		return errors.New("session manager not initialised")
	}
	id, sig, ok := strings.Cut(token, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(m.sign(id))) {
		return ErrSessionNotFound
	}
	return m.client.Del(ctx, m.key(id)).Err()
}

func (m *SessionManager) key(id string) string {
	return m.prefix + ":" + id
}

func (m *SessionManager) sign(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
