// Package notifytest provides an in-memory Notifier for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
)

type Recorder struct {
	mu    sync.Mutex
	calls []snowflake.ID
	err   error
}

func (r *Recorder) OrganizationChanged(_ context.Context, organizationID snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, organizationID)
	return r.err
}

// FailWith makes every following call return err after recording it.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Recorder) Calls() []snowflake.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]snowflake.ID(nil), r.calls...)
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
