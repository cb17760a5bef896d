// Package valkey wraps valkey-go with the connection and key-naming
// conventions used by the cache layer. Callers reach the raw client via
// Inner and build keys via Key so every entry lands under one prefix.
package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const connectTimeout = 5 * time.Second

type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// Client holds one shared connection. Create it once at startup and pass
// it down; Close it on shutdown.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings within a fixed timeout, so a missing
// Valkey is detected at startup rather than on the first cache write.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s: %w", cfg.Address, err)
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Client{inner: inner, keyPrefix: prefix}, nil
}

// Inner exposes the underlying valkey-go client for building commands.
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

// Key joins the parts under the configured prefix, colon separated.
func (c *Client) Key(parts ...string) string {
	return c.keyPrefix + strings.Join(parts, ":")
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// IsNil reports whether an error is the Valkey NIL reply, i.e. a cache
// miss rather than a failure.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
