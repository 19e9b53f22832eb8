// Package valkey provides a Valkey-backed session store for multi-replica
// deployments.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/tenantkit/tenantkit/session"
)

const (
	// DefaultKeyPrefix is the default prefix for all session keys.
	DefaultKeyPrefix = "tenantkit:session:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey session backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "tenantkit:session:")
	KeyPrefix string

	// TTL is the sliding session window (default 30 minutes)
	TTL time.Duration

	// Secure controls the session cookie's Secure attribute
	Secure bool

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed session.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

var _ session.Store = (*Store)(nil)

// New creates a Valkey-backed session store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey session store",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		secure: cfg.Secure,
		logger: logger,
	}, nil
}

// Get returns the session record referenced by the request cookie.
func (s *Store) Get(r *http.Request) (*session.Claims, error) {
	id, ok := session.IDFromRequest(r)
	if !ok {
		return nil, session.ErrNotFound
	}

	ctx := r.Context()
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(id)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var claims session.Claims
	if err := json.Unmarshal([]byte(data), &claims); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &claims, nil
}

// Put stores the record with a sliding TTL and refreshes the cookie,
// reusing the request's session ID when one exists.
func (s *Store) Put(w http.ResponseWriter, r *http.Request, claims *session.Claims) error {
	id, ok := session.IDFromRequest(r)
	if !ok {
		id = uuid.NewString()
	}

	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ctx := r.Context()
	if err := s.client.Do(ctx, s.client.B().Set().Key(s.key(id)).Value(string(data)).Ex(s.ttl).Build()).Error(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	session.WriteCookie(w, id, s.secure, s.ttl)
	return nil
}

// Destroy removes the record and expires the cookie.
func (s *Store) Destroy(w http.ResponseWriter, r *http.Request) error {
	if id, ok := session.IDFromRequest(r); ok {
		ctx := r.Context()
		if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(id)).Build()).Error(); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	session.ClearCookie(w, s.secure)
	return nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey session store connection closed")
}

func (s *Store) key(id string) string {
	return s.prefix + id
}
