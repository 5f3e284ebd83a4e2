// Package testutil provides shared test helpers for setting up stores, sessions and attachment roots.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/monteerly/internal/docstore"
	"github.com/starford/monteerly/internal/session"
	"github.com/starford/monteerly/internal/storage"
)

// TestStore opens a document store in a temporary SQLite file that is
// closed when the test ends.
func TestStore(t *testing.T, opts ...docstore.Option) *docstore.Store {
	t.Helper()
	store, err := docstore.Open(filepath.Join(t.TempDir(), "monteerly-test.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestSessions returns a session Service sharing store's database.
func TestSessions(t *testing.T, store *docstore.Store, opts ...session.Option) *session.Service {
	t.Helper()
	svc, err := session.NewService(store.SQL(), store, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

// SignedUp creates an account and returns its session.
func SignedUp(t *testing.T, svc *session.Service, email string) session.Session {
	t.Helper()
	sess, err := svc.SignUp(context.Background(), email, "correct-horse")
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

// TestAttachments creates a temporary attachments root with a storage.Provider.
func TestAttachments(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}
