// Package client provides the RPC transport abstraction that every
// op-service/sources client is built on: a thin, retrying wrapper around
// go-ethereum's *rpc.Client, so the L1/L2/Engine clients never depend on
// the concrete transport (HTTP vs. WS vs. IPC) or on retry policy.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/ethscriptions-protocol/eth-node/op-service/retry"
)

// RPC is the minimal interface op-service/sources clients depend on,
// letting callers substitute a mock transport in tests.
type RPC interface {
	Close()
	CallContext(ctx context.Context, result any, method string, args ...any) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// AuthHeaderSetter installs a bearer token on every request; used for the
// JWT-authenticated Engine API endpoint (spec.md §6).
type AuthHeaderSetter func() (string, error)

// Config controls rate limiting and retry behavior shared by every RPC
// client constructed from it.
type Config struct {
	// RateLimit caps outbound requests per second; 0 disables limiting.
	RateLimit float64
	// RateBurst is the token bucket burst size.
	RateBurst int
	// MaxAttempts is the retry budget for transient errors (spec.md §4.1: 7).
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{RateLimit: 0, RateBurst: 1, MaxAttempts: retry.DefaultMaxRetries}
}

// rpcClient wraps *rpc.Client with a token-bucket limiter and retry policy.
type rpcClient struct {
	inner   *rpc.Client
	log     log.Logger
	limiter *rate.Limiter
	cfg     Config
}

// DialContext connects to an RPC endpoint over HTTP(S), WS, or IPC (as
// determined by go-ethereum's rpc.DialContext), optionally attaching a JWT
// bearer token via authFn for Engine API authentication.
func DialContext(ctx context.Context, log log.Logger, url string, cfg Config, authFn AuthHeaderSetter) (RPC, error) {
	var opts []rpc.ClientOption
	if authFn != nil {
		opts = append(opts, rpc.WithHTTPClient(&http.Client{
			Transport: &authRoundTripper{authFn: authFn, inner: http.DefaultTransport},
		}))
	}
	inner, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint %s: %w", url, err)
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return &rpcClient{inner: inner, log: log, limiter: limiter, cfg: cfg}, nil
}

func (c *rpcClient) Close() { c.inner.Close() }

func (c *rpcClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	_, err := retry.Do(ctx, maxAttempts, retry.Default(), func() (struct{}, error) {
		return struct{}{}, c.inner.CallContext(ctx, result, method, args...)
	})
	return err
}

func (c *rpcClient) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.inner.BatchCallContext(ctx, b)
}

type authRoundTripper struct {
	authFn AuthHeaderSetter
	inner  http.RoundTripper
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.authFn()
	if err != nil {
		return nil, fmt.Errorf("failed to mint jwt for request: %w", err)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return t.inner.RoundTrip(req)
}

// CallTimeout is a default per-call deadline (spec.md §4.4: 0.5s base per
// Engine call attempt, so a single attempt should not itself stall). No
// client in this module applies it; calls use the caller's context deadline.
const CallTimeout = 10 * time.Second
