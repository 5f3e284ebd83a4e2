package docstore

import (
	"context"

	"github.com/starford/monteerly/internal/apperr"
)

// liveQuery is the Store's Subscription: it re-runs its query whenever the
// feed signals a change to its collection and pushes the full result set.
type liveQuery struct {
	collection string
	query      Query
	out        chan Snapshot
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
}

// Subscribe opens a live query. The first snapshot carries the current
// result set; later snapshots follow every committed change to the
// collection. Cancelling ctx has the same effect as Close.
func (s *Store) Subscribe(ctx context.Context, collection string, q Query) (Subscription, error) {
	if s.feed.closed.Load() {
		return nil, ErrClosed
	}
	notify := s.feed.Subscribe(collection)

	ctx, cancel := context.WithCancel(ctx)
	lq := &liveQuery{
		collection: collection,
		query:      q,
		out:        make(chan Snapshot),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go lq.run(ctx, s, notify)
	return lq, nil
}

func (lq *liveQuery) run(ctx context.Context, s *Store, notify chan struct{}) {
	defer close(lq.done)
	defer close(lq.out)
	defer s.feed.Unsubscribe(notify)

	for {
		docs, err := s.Find(ctx, lq.collection, lq.query)
		if err != nil {
			if ctx.Err() == nil {
				lq.err = &apperr.SyncError{Collection: lq.collection, Err: err}
			}
			return
		}

		select {
		case lq.out <- Snapshot{Docs: docs, ReadAt: s.now()}:
		case <-ctx.Done():
			return
		}

		select {
		case _, ok := <-notify:
			if !ok {
				lq.err = &apperr.SyncError{Collection: lq.collection, Err: ErrClosed}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (lq *liveQuery) Snapshots() <-chan Snapshot { return lq.out }

// Err is meaningful once the snapshot channel is closed.
func (lq *liveQuery) Err() error {
	select {
	case <-lq.done:
		return lq.err
	default:
		return nil
	}
}

// Close stops the query and waits for its goroutine. Idempotent.
func (lq *liveQuery) Close() {
	lq.cancel()
	<-lq.done
}
