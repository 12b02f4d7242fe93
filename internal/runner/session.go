package runner

import (
	"context"
	"sync"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapcode/internal/compiler"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
)

// Session executes a chain of script submissions. The globals of every
// submission stay in scope for the ones after it.
type Session struct {
	runner *Runner
	host   *starctx.HostObject

	mu      sync.Mutex
	globals starlark.StringDict
	count   int
}

// NewSession starts a session bound to a host object.
func (r *Runner) NewSession(host *starctx.HostObject) *Session {
	return &Session{
		runner:  r,
		host:    host,
		globals: make(starlark.StringDict),
	}
}

// Submit executes the next submission and returns its exports.
// A failed submission leaves the session unchanged.
func (s *Session) Submit(ctx context.Context, res *compiler.Result) (starlark.StringDict, error) {
	img, err := res.DecodeImage()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exports, err := s.runner.Exec(ctx, img, s.host, s.globals)
	if err != nil {
		return nil, err
	}
	for name, v := range exports {
		s.globals[name] = v
	}
	s.count++
	return exports, nil
}

// Globals returns a copy of every name defined so far.
func (s *Session) Globals() starlark.StringDict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(starlark.StringDict, len(s.globals))
	for k, v := range s.globals {
		out[k] = v
	}
	return out
}

// Submissions returns the number of successful submissions.
func (s *Session) Submissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
