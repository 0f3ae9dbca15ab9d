// Package jwt issues short-lived HS256 bearer tokens for authenticating to
// the Engine API, per spec.md §6. The secret is loaded from disk once and
// hot-reloaded on change so an operator can rotate it without restarting
// the node.
package jwt

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v4"
)

// tokenTTL is the claim lifetime; refreshTTL is how long a cached token is
// reused before a fresh one is minted, leaving margin for clock skew with
// the execution client (the Engine API spec allows ±60s).
const (
	tokenTTL   = 60 * time.Second
	refreshTTL = 55 * time.Second
)

// Source mints bearer tokens for Engine API requests.
type Source struct {
	mu     sync.Mutex
	secret []byte

	cached    string
	cachedAt  time.Time

	watcher *fsnotify.Watcher
	log     log.Logger
}

// NewFileSource reads a hex-encoded secret of at least 32 bytes from path and watches it
// for changes via fsnotify, so an in-place secret rotation takes effect
// without a process restart.
func NewFileSource(log log.Logger, path string) (*Source, error) {
	secret, err := readSecret(path)
	if err != nil {
		return nil, err
	}
	s := &Source{secret: secret, log: log}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt secret watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch jwt secret file: %w", err)
	}
	s.watcher = w
	go s.watchLoop(path)
	return s, nil
}

func (s *Source) watchLoop(path string) {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			secret, err := readSecret(path)
			if err != nil {
				s.log.Warn("failed to reload jwt secret", "err", err)
				continue
			}
			s.mu.Lock()
			s.secret = secret
			s.cached = ""
			s.mu.Unlock()
			s.log.Info("reloaded jwt secret")
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("jwt secret watcher error", "err", err)
		}
	}
}

// Close stops the file watcher, if one is running.
func (s *Source) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// Token returns a bearer token valid for use right now, minting a new one
// if the cached token is older than refreshTTL or the secret has rotated.
func (s *Source) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && time.Since(s.cachedAt) < refreshTTL {
		return s.cached, nil
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign jwt: %w", err)
	}
	s.cached = signed
	s.cachedAt = now
	return signed, nil
}

func readSecret(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jwt secret file %s: %w", path, err)
	}
	hexStr := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	secret, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("invalid jwt secret in %s: %w", path, err)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret in %s is %d bytes, want at least 32", path, len(secret))
	}
	return secret, nil
}
