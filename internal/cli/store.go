package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/stepflow/internal/config"
	"github.com/aretw0/stepflow/pkg/adapters/file"
	"github.com/aretw0/stepflow/pkg/adapters/memory"
	"github.com/aretw0/stepflow/pkg/adapters/redis"
	"github.com/aretw0/stepflow/pkg/persistence/middleware"
	"github.com/aretw0/stepflow/pkg/ports"
)

// Storage is the run store selected by configuration, with its optional locker.
type Storage struct {
	Store  ports.RunStore
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases the backend connection, if any.
func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStorage builds the configured store and wraps it with the masking and
// encryption middleware when they are configured. Masking runs before
// encryption so sealed records never contain the masked values.
func OpenStorage(cfg config.StoreConfig, logger *slog.Logger) (*Storage, error) {
	s := &Storage{}

	var base ports.RunStore
	switch cfg.Kind {
	case config.StoreMemory, "":
		base = memory.NewStore()
	case config.StoreFile:
		base = file.New(cfg.Path)
	case config.StoreRedis:
		opts := []redis.Option{redis.WithPrefix(cfg.Prefix + ":run:")}
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		base = rs
		s.Locker = redis.NewLocker(rs.Client(), cfg.Prefix+":")
		s.close = rs.Close
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}

	var mws []middleware.Middleware
	if len(cfg.MaskFields) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.MaskFields)
		if err != nil {
			return nil, fmt.Errorf("store.mask_fields: %w", err)
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		enc, err := encryption(cfg)
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	s.Store = middleware.Chain(base, mws...)

	logger.Debug("run store opened",
		"kind", cfg.Kind,
		"masked_fields", len(cfg.MaskFields),
		"encrypted", cfg.EncryptionKey != "",
	)
	return s, nil
}

func encryption(cfg config.StoreConfig) (middleware.Middleware, error) {
	active, err := middleware.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	ec := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range cfg.PreviousKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("store.previous_keys[%d]: %w", i, err)
		}
		ec.FallbackKeys = append(ec.FallbackKeys, key)
	}
	return middleware.NewEncryptionMiddleware(ec)
}
