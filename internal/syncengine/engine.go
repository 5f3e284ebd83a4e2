// Package syncengine keeps a local, ordered, aggregated view of one owner's
// records in sync with a live document store query.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/docstore"
	"github.com/starford/monteerly/internal/models"
)

// State is the subscription lifecycle of an Engine.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Subscriber opens live queries.
type Subscriber interface {
	Subscribe(ctx context.Context, collection string, q docstore.Query) (docstore.Subscription, error)
}

// Observer receives every reconciled View. Observers run on the engine's
// pump goroutine while the engine is locked: they must not call Open or
// Close, and should hand work off quickly.
type Observer func(View)

type observerEntry struct {
	id uint64
	fn Observer
}

// Handle identifies one live subscription owned by an Engine.
type Handle struct {
	id      uint64
	owner   string
	opts    Options
	sub     docstore.Subscription
	revoked atomic.Bool
	ready   chan struct{} // closed on the first applied snapshot
	done    chan struct{}
	err     error
}

// Owner returns the identity the subscription is scoped to.
func (h *Handle) Owner() string { return h.owner }

// Done is closed once the subscription has stopped delivering.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the terminal SyncError, or nil if the handle was closed
// normally or is still live.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Engine owns at most one live subscription and its local cache.
type Engine struct {
	kind   models.Kind
	store  Subscriber
	logger *slog.Logger

	opMu sync.Mutex // serializes Open and Close

	mu        sync.Mutex
	state     State
	current   *Handle
	view      View
	version   uint64
	handleSeq uint64
	observers []observerEntry
	obsSeq    uint64
}

// New creates an engine for one record kind.
func New(store Subscriber, kind models.Kind, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		kind:   kind,
		store:  store,
		logger: logger,
		view:   View{Kind: kind, Records: []models.Record{}, Visible: []models.Record{}},
	}
}

// Observe registers fn for every future View and returns its unsubscribe func.
func (e *Engine) Observe(fn Observer) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.obsSeq++
	id := e.obsSeq
	e.observers = append(e.observers, observerEntry{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, o := range e.observers {
			if o.id == id {
				e.observers = append(e.observers[:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// View returns the most recent reconciled View.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Current returns the live handle, or nil.
func (e *Engine) Current() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Open subscribes to ownerID's records. Any handle the engine already owns
// is closed first, so two handles are never live at once.
func (e *Engine) Open(ctx context.Context, ownerID string, opts Options) (*Handle, error) {
	if ownerID == "" {
		return nil, apperr.ErrNotAuthenticated
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if prev := e.Current(); prev != nil {
		e.closeHandle(prev)
	}

	e.mu.Lock()
	e.state = StateSubscribing
	e.view = View{Kind: e.kind, Records: []models.Record{}, Visible: []models.Record{}}
	e.handleSeq++
	h := &Handle{
		id:    e.handleSeq,
		owner: ownerID,
		opts:  opts,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.mu.Unlock()

	collection := e.kind.Collection()
	sub, err := e.store.Subscribe(ctx, collection, ownerQuery(ownerID, opts))
	if err != nil {
		e.mu.Lock()
		e.state = StateUnsubscribed
		e.mu.Unlock()
		return nil, &apperr.SyncError{Collection: collection, Err: err}
	}
	h.sub = sub

	e.mu.Lock()
	e.current = h
	e.state = StateActive
	e.mu.Unlock()

	e.logger.Debug("sync: subscribed",
		slog.String("collection", collection),
		slog.String("owner", ownerID),
		slog.Uint64("handle", h.id))

	go e.pump(h)
	return h, nil
}

// Close releases h. No cache mutation or notification happens for h after
// Close returns, even for a snapshot already in flight. Idempotent.
func (e *Engine) Close(h *Handle) {
	if h == nil {
		return
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.closeHandle(h)
}

func (e *Engine) closeHandle(h *Handle) {
	first := h.revoked.CompareAndSwap(false, true)

	e.mu.Lock()
	if e.current == h {
		e.current = nil
		e.state = StateClosed
	}
	e.mu.Unlock()

	if first && h.sub != nil {
		h.sub.Close()
		e.logger.Debug("sync: closed",
			slog.String("collection", e.kind.Collection()),
			slog.Uint64("handle", h.id))
	}
	if h.sub != nil {
		<-h.done
	}
}

func (e *Engine) pump(h *Handle) {
	defer close(h.done)

	for snap := range h.sub.Snapshots() {
		e.apply(h, snap)
	}

	if h.revoked.Load() {
		return
	}
	if err := h.sub.Err(); err != nil {
		h.err = err
		e.logger.Warn("sync: subscription failed",
			slog.String("collection", e.kind.Collection()),
			slog.String("error", err.Error()))
	}
	e.mu.Lock()
	if e.current == h {
		e.current = nil
		e.state = StateClosed
	}
	e.mu.Unlock()
}

func (e *Engine) apply(h *Handle, snap docstore.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h.revoked.Load() || e.current != h {
		return
	}

	view := Reconcile(e.kind, snap.Docs, h.opts)
	e.version++
	view.Version = e.version
	view.ReadAt = snap.ReadAt
	e.view = view
	if !isClosed(h.ready) {
		close(h.ready)
	}

	for _, o := range e.observers {
		o.fn(view)
	}
}

// Await blocks until the live handle has applied its first snapshot and
// returns the current View. It fails with ErrNotAuthenticated when no
// handle is live, or with the handle's SyncError if it ends first.
func (e *Engine) Await(ctx context.Context) (View, error) {
	h := e.Current()
	if h == nil {
		return View{}, apperr.ErrNotAuthenticated
	}
	select {
	case <-h.ready:
		return e.View(), nil
	case <-h.done:
		if err := h.Err(); err != nil {
			return View{}, err
		}
		return View{}, apperr.ErrNotAuthenticated
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func ownerQuery(ownerID string, opts Options) docstore.Query {
	where := append([]docstore.Filter{
		docstore.Where(models.FieldOwner, docstore.OpEqual, ownerID),
	}, opts.Match...)
	return docstore.Query{
		Where:   where,
		OrderBy: models.FieldCreatedAt,
		Desc:    true,
		Limit:   opts.Limit,
	}
}
