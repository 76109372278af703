// Package asyncstore backs the REST listener's `/invoke-async` +
// `/status/:id` pair: a place to park a pending invocation's eventual
// result. Store is implemented twice — an in-memory ring for the
// zero-config default, and an optional Redis-backed implementation
// for distributed deployments — selected the same way the teacher's
// own cache.Config{Enabled} chooses a no-op-when-disabled client.
package asyncstore

import (
	"context"
	"time"
)

// Status is an async invocation's lifecycle stage.
type Status string

const (
	Pending Status = "pending"
	Done    Status = "done"
	Failed  Status = "failed"
)

// Result is what /status/:id reports.
type Result struct {
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store abstracts where pending/done/failed async results live.
type Store interface {
	// Put records a new pending invocation under id.
	Put(ctx context.Context, id string) error
	// Complete marks id done with data.
	Complete(ctx context.Context, id string, data interface{}) error
	// Fail marks id failed with an error message.
	Fail(ctx context.Context, id string, errMsg string) error
	// Get returns id's current Result, or false if unknown/expired.
	Get(ctx context.Context, id string) (Result, bool, error)
}
