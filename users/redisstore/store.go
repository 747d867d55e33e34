// Package redisstore keeps local profiles in Redis. Uniqueness of the external
// subject is enforced with SETNX on the subject key.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-session-broker/users"
	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

var _ users.UserRepo = (*Store)(nil)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// storedUser is the JSON form of users.User kept under the subject key
type storedUser struct {
	ID                string `json:"id"`
	ExternalSubjectID string `json:"external_subject_id"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	CreatedAt         string `json:"created_at"` // RFC3339Nano; a string survives the Lua cjson round trip
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) subjectKey(externalSubjectID string) string {
	return s.keyPrefix + "profile:ext:" + externalSubjectID
}

func (s *Store) idKey(id string) string {
	return s.keyPrefix + "profile:id:" + id
}

func (s *Store) Insert(ctx context.Context, user *users.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(storedUser{
		ID:                user.ID,
		ExternalSubjectID: user.ExternalSubjectID,
		Email:             user.Email,
		Role:              string(user.Role),
		CreatedAt:         user.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	// SetNX is the unique constraint: the first writer for a subject wins.
	created, err := s.client.SetNX(ctx, s.subjectKey(user.ExternalSubjectID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	if !created {
		return users.ErrDuplicateKey
	}

	if err := s.client.Set(ctx, s.idKey(user.ID), user.ExternalSubjectID, 0).Err(); err != nil {
		return fmt.Errorf("failed to index profile id: %w", err)
	}
	return nil
}

func (s *Store) FindByExternalID(ctx context.Context, externalSubjectID string) (*users.User, error) {
	data, err := s.client.Get(ctx, s.subjectKey(externalSubjectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return decodeUser(data)
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	subject, err := s.client.Get(ctx, s.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile id: %w", err)
	}
	return s.FindByExternalID(ctx, subject)
}

// setRoleScript rewrites the role field in place so a concurrent writer cannot
// be overwritten with a stale record. Returns 0 if the key does not exist.
var setRoleScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return 0
end
local profile = cjson.decode(data)
profile.role = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(profile))
return 1
`)

func (s *Store) SetRole(ctx context.Context, id string, role users.RoleType) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	subject, err := s.client.Get(ctx, s.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return users.ErrNotFound
		}
		return fmt.Errorf("failed to get profile id: %w", err)
	}

	result, err := setRoleScript.Run(ctx, s.client, []string{s.subjectKey(subject)}, string(role)).Int()
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if result == 0 {
		return users.ErrNotFound
	}
	return nil
}

func decodeUser(data []byte) (*users.User, error) {
	var stored storedUser
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	role, err := users.ParseRole(stored.Role)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile created_at: %w", err)
	}
	return &users.User{
		ID:                stored.ID,
		ExternalSubjectID: stored.ExternalSubjectID,
		Email:             stored.Email,
		Role:              role,
		CreatedAt:         createdAt,
	}, nil
}
