package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// KVConfig configures the NATS JetStream key-value store.
type KVConfig struct {
	// BucketPrefix namespaces the buckets created per category
	// (default: "stageflow").
	BucketPrefix string

	// Timeout bounds each store operation (default: 5s).
	Timeout time.Duration

	// History is the number of revisions retained per key (default: 1;
	// the engine only needs last-write-wins semantics).
	History uint8
}

// DefaultKVConfig returns sensible defaults.
func DefaultKVConfig() *KVConfig {
	return &KVConfig{
		BucketPrefix: "stageflow",
		Timeout:      5 * time.Second,
		History:      1,
	}
}

// KV is a Store backed by NATS JetStream key-value buckets, one bucket per
// category. Buckets are created lazily on first write.
type KV struct {
	config *KVConfig
	js     nats.JetStreamContext
	logger *zap.Logger

	mu      sync.Mutex
	buckets map[string]nats.KeyValue
}

// NewKV creates a JetStream-backed store on an established NATS connection.
func NewKV(nc *nats.Conn, cfg *KVConfig, logger *zap.Logger) (*KV, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if cfg == nil {
		cfg = DefaultKVConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	return &KV{
		config:  cfg,
		js:      js,
		logger:  logger,
		buckets: make(map[string]nats.KeyValue),
	}, nil
}

// bucket returns the key-value bucket for a category, creating it if needed.
func (s *KV) bucket(category string) (nats.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kv, ok := s.buckets[category]; ok {
		return kv, nil
	}

	name := fmt.Sprintf("%s_%s", s.config.BucketPrefix, category)
	kv, err := s.js.KeyValue(name)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = s.js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  name,
			History: s.config.History,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", name, err)
	}

	s.buckets[category] = kv
	return kv, nil
}

// Put upserts value under category/key.
func (s *KV) Put(ctx context.Context, category, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s/%s: %w", category, key, err)
	}

	kv, err := s.bucket(category)
	if err != nil {
		return err
	}

	err = s.run(ctx, func() error {
		_, err := kv.Put(encodeKey(key), data)
		return err
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", category, key, err)
	}
	return nil
}

// Get returns the value stored under category/key, or ErrNotFound.
func (s *KV) Get(ctx context.Context, category, key string) (json.RawMessage, error) {
	kv, err := s.bucket(category)
	if err != nil {
		return nil, err
	}

	var entry nats.KeyValueEntry
	err = s.run(ctx, func() error {
		var err error
		entry, err = kv.Get(encodeKey(key))
		return err
	})
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", category, key, err)
	}
	return entry.Value(), nil
}

// GetAll returns every key/value pair in a category. Keys are reported in
// their original, decoded form.
func (s *KV) GetAll(ctx context.Context, category string) (map[string]json.RawMessage, error) {
	kv, err := s.bucket(category)
	if err != nil {
		return nil, err
	}

	var out map[string]json.RawMessage
	err = s.run(ctx, func() error {
		keys, err := kv.Keys()
		if errors.Is(err, nats.ErrNoKeysFound) {
			out = map[string]json.RawMessage{}
			return nil
		}
		if err != nil {
			return fmt.Errorf("list keys in %s: %w", category, err)
		}

		got := make(map[string]json.RawMessage, len(keys))
		for _, key := range keys {
			entry, err := kv.Get(key)
			if errors.Is(err, nats.ErrKeyNotFound) {
				// Deleted between Keys and Get; skip.
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s/%s: %w", category, key, err)
			}
			got[decodeKey(key)] = entry.Value()
		}
		out = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// run executes fn in a goroutine bounded by the caller's context and the
// configured operation timeout. The legacy KeyValue API takes no context,
// so cancellation abandons the in-flight call rather than interrupting it.
func (s *KV) run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.deadline(ctx):
		return context.DeadlineExceeded
	}
}

// deadline returns a channel that fires at the earlier of the context
// deadline and the configured operation timeout.
func (s *KV) deadline(ctx context.Context) <-chan time.Time {
	timeout := s.config.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}
	return time.After(timeout)
}

// NATS KV keys only admit a narrow token charset, while workflow IDs and
// reference artifacts are caller-assigned free text. encodeKey passes
// [A-Za-z0-9_-] through and escapes every other byte as "=XX" (uppercase
// hex), "=" being the one legal KV key character free to serve as the
// escape marker.
func encodeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "=%02X", c)
	}
	return b.String()
}

// decodeKey inverts encodeKey. Malformed escapes are kept literally; they
// can only come from keys written outside this adapter.
func decodeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		if key[i] == '=' && i+2 < len(key) {
			if v, err := strconv.ParseUint(key[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(key[i])
	}
	return b.String()
}
