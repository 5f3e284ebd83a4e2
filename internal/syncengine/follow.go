package syncengine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/monteerly/internal/session"
)

// IdentitySource pushes the signed-in identity (nil when signed out).
type IdentitySource interface {
	Observe(fn func(*session.Identity)) (unsubscribe func())
}

// Follow keeps the engine scoped to whoever is signed in on src: a new
// identity re-opens the subscription, sign-out closes it. The returned stop
// func detaches from src and closes any live handle.
func (e *Engine) Follow(ctx context.Context, src IdentitySource, opts Options) (stop func()) {
	var (
		mu      sync.Mutex
		owner   string
		handle  *Handle
		stopped bool
	)

	unsubscribe := src.Observe(func(id *session.Identity) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}

		next := ""
		if id != nil {
			next = id.UserID
		}
		if next == owner && (next == "" || handle != nil) {
			return
		}

		if handle != nil {
			e.Close(handle)
			handle = nil
		}
		owner = next
		if next == "" {
			return
		}

		h, err := e.Open(ctx, next, opts)
		if err != nil {
			e.logger.Warn("sync: follow open failed",
				slog.String("owner", next),
				slog.String("error", err.Error()))
			return
		}
		handle = h
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			defer mu.Unlock()
			stopped = true
			if handle != nil {
				e.Close(handle)
				handle = nil
			}
		})
	}
}
