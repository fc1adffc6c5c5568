package chainconn

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"
)

const (
	DefaultDialTimeout      = 60 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

type DialOptions struct {
	// Timeout bounds the whole dial including retries. Zero means
	// DefaultDialTimeout.
	Timeout          time.Duration
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
}

func (o DialOptions) withDefaults() DialOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultDialTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 1 << 16
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = 1 << 14
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	return o
}

// ValidateWSURL accepts ws:// and wss:// endpoints only. Subscriptions need a
// persistent connection.
func ValidateWSURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid rpc url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("rpc url must be ws:// or wss:// (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("rpc url has no host")
	}
	return nil
}

// Dial connects to a WebSocket JSON-RPC endpoint, retrying with jittered
// exponential backoff until opts.Timeout. It returns the client and the
// current head block number.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*ethclient.Client, uint64, error) {
	if err := ValidateWSURL(rawURL); err != nil {
		return nil, 0, err
	}
	opts = opts.withDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
	}

	delay := opts.BaseDelay
	for {
		if err := dialCtx.Err(); err != nil {
			return nil, 0, fmt.Errorf("dial %s: %w", redact(rawURL), err)
		}

		rpcClient, err := rpc.DialOptions(dialCtx, rawURL, rpc.WithWebsocketDialer(dialer))
		if err == nil {
			client := ethclient.NewClient(rpcClient)
			headNum, headErr := client.BlockNumber(dialCtx)
			if headErr == nil {
				return client, headNum, nil
			}
			client.Close()
			err = fmt.Errorf("failed to fetch head: %w", headErr)
		}

		wait := jitterDuration(delay)
		log.Printf("[warn] failed to connect rpc ws, retrying in %s: %v", wait, err)
		if err := sleepWithContext(dialCtx, wait); err != nil {
			return nil, 0, fmt.Errorf("dial %s: giving up: %w", redact(rawURL), err)
		}
		delay *= 2
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
}

// redact drops the path and query, where hosted providers put API keys.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<rpc>"
	}
	return u.Scheme + "://" + u.Host
}

func jitterDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j := d / 5 // +/-20%
	if j <= 0 {
		return d
	}
	return d - j + time.Duration(rand.Int63n(int64(j*2)+1))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
