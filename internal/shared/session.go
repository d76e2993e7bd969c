package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session holds the authenticated identity resolved for one request.
type Session struct {
	Token     string `json:"-"`
	UserID    int64  `json:"user_id"`
	CompanyID int64  `json:"company_id"`
}

// SessionStore persists bearer-token sessions in Redis.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Create mints a new token for the identity and stores it with TTL.
func (s *SessionStore) Create(ctx context.Context, userID, companyID int64) (*Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	sess := &Session{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		UserID:    userID,
		CompanyID: companyID,
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, sessionKey(sess.Token), payload, s.ttl).Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load resolves a bearer token to its session, refreshing the TTL.
func (s *SessionStore) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	payload, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	sess.Token = token
	_ = s.client.Expire(ctx, sessionKey(token), s.ttl).Err()
	return &sess, nil
}

// Destroy removes the session for token.
func (s *SessionStore) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.client.Del(ctx, sessionKey(token)).Err()
}
