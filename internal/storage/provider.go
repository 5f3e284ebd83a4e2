// Package storage keeps project attachment files on disk.
package storage

import (
	"errors"
	"time"
)

// ErrInvalidName is returned for names that are empty, hidden or contain a
// path component.
var ErrInvalidName = errors.New("storage: invalid name")

// File describes one stored attachment.
type File struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider stores files grouped by project id.
type Provider interface {
	// List returns the files of a project sorted by name.
	List(projectID string) ([]File, error)
	// Read returns the content of one file.
	Read(projectID, name string) ([]byte, error)
	// Write atomically stores content under name, replacing any existing file.
	Write(projectID, name string, content []byte) (File, error)
	// Delete removes one file.
	Delete(projectID, name string) error
	// DeleteAll removes every file of a project. Missing projects are a no-op.
	DeleteAll(projectID string) error
}
