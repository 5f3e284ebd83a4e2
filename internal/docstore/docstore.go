// Package docstore is the document database gateway: schemaless JSON
// documents grouped into named collections, with one-shot queries and live
// query subscriptions that stream full result snapshots.
package docstore

import (
	"context"
	"time"
)

// Doc is one stored document.
type Doc struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Snapshot is the full result set of a subscribed query at one point in time.
type Snapshot struct {
	Docs   []Doc
	ReadAt time.Time
}

// Op is a filter comparison operator.
type Op string

const (
	OpEqual Op = "=="
	OpIn    Op = "in"
)

// Filter restricts a query to documents whose field matches Value.
// For OpIn, Value must be a slice.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents from a collection.
// Documents with equal OrderBy values keep insertion order.
type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Subscription is a live query. Snapshots are delivered in the order the
// store produces them; the channel closes after Close or on failure, and
// Err then reports the terminal error, if any.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Err() error
	Close()
}

// Gateway is the full document store surface.
type Gateway interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (Doc, error)
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	SetMissing(ctx context.Context, collection, id string, fields map[string]any) error
	Find(ctx context.Context, collection string, q Query) ([]Doc, error)
	Subscribe(ctx context.Context, collection string, q Query) (Subscription, error)
}

// Verify *Store satisfies Gateway at compile time.
var _ Gateway = (*Store)(nil)

type serverTimestamp struct{}

// ServerTimestamp, used as a field value, is replaced with the store's
// clock at write time.
var ServerTimestamp any = serverTimestamp{}
