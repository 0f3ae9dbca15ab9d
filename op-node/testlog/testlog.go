// Package testlog adapts github.com/ethereum/go-ethereum/log to write into
// a test's own log (t.Logf) rather than stdout, so `go test -v` output and
// driver log lines interleave correctly. Mirrors the usage shape of
// go-ethereum's internal/testlog package.
package testlog

import (
	"github.com/ethereum/go-ethereum/log"
)

// T is the subset of *testing.T (and *testing.B) this package needs.
type T interface {
	Helper()
	Logf(format string, args ...any)
}

type handler struct{ t T }

func (h handler) Log(r *log.Record) error {
	h.t.Helper()
	h.t.Logf("%s", log.TerminalFormat(false).Format(r))
	return nil
}

// Logger returns a log.Logger that writes through t at the given level, for
// use in driver/proposer/validator tests that expect a real log.Logger
// rather than a discard handler.
func Logger(t T, level log.Lvl) log.Logger {
	l := log.New()
	l.SetHandler(log.LvlFilterHandler(level, handler{t}))
	return l
}

// NopLogger returns a logger that discards everything, for tests that don't
// care about log output at all.
func NopLogger() log.Logger {
	l := log.New()
	l.SetHandler(log.DiscardHandler())
	return l
}
