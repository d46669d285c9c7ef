package database

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// DefaultConnectTimeout bounds the initial ping to Valkey.
const DefaultConnectTimeout = 5 * time.Second

// ValkeyConfig configures the Valkey state backend.
type ValkeyConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// ValkeyStore implements Store on Valkey. Expiry is native, so cleanup and
// maintenance are no-ops.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewValkeyClient connects to Valkey and verifies the connection with a ping.
func NewValkeyClient(ctx context.Context, cfg ValkeyConfig) (valkey.Client, error) {
	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}
	return client, nil
}

// NewValkeyStore wraps an existing client. keyPrefix namespaces all keys.
func NewValkeyStore(client valkey.Client, keyPrefix string, ttl time.Duration, logger *slog.Logger) *ValkeyStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, ":") {
		keyPrefix += ":"
	}
	return &ValkeyStore{
		client: client,
		prefix: keyPrefix + "registration:",
		ttl:    ttl,
		logger: logger.With("component", "valkey_store"),
	}
}

func (s *ValkeyStore) key(telegramID int64) string {
	return s.prefix + strconv.FormatInt(telegramID, 10)
}

func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

func (s *ValkeyStore) GetState(ctx context.Context, telegramID int64) (*RegistrationState, error) {
	cmd := s.client.B().Get().Key(s.key(telegramID)).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registration state: %w", err)
	}

	var state RegistrationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registration state: %w", err)
	}
	return &state, nil
}

func (s *ValkeyStore) SaveState(ctx context.Context, state *RegistrationState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil registration state")
	}
	if !state.Step.Valid() {
		return fmt.Errorf("registration state has unknown step %q", state.Step)
	}
	state.ExpiresAt = time.Now().Add(s.ttl).UTC().Truncate(time.Second)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal registration state: %w", err)
	}

	cmd := s.client.B().Set().
		Key(s.key(state.TelegramID)).
		Value(string(data)).
		Ex(s.ttl).
		Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to save registration state", "telegram_id", state.TelegramID, "error", err)
		return fmt.Errorf("failed to save registration state: %w", err)
	}
	return nil
}

func (s *ValkeyStore) DeleteState(ctx context.Context, telegramID int64) error {
	cmd := s.client.B().Del().Key(s.key(telegramID)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete registration state: %w", err)
	}
	return nil
}

func (s *ValkeyStore) DeleteExpiredStates(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *ValkeyStore) RunSQLMaintenance(context.Context) error {
	return nil
}

func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
