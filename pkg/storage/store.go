package storage

import (
	"errors"
)

// ErrNotFound is returned by Load when nothing has been saved under a name
var ErrNotFound = errors.New("blob not found")

// Store persists named opaque blobs. Caches serialize and encrypt their
// contents before handing them to a Store, so implementations never see
// plaintext.
type Store interface {
	// Load returns the blob saved under name, or ErrNotFound
	Load(name string) ([]byte, error)

	// Save replaces the blob saved under name
	Save(name string, blob []byte) error

	// Utility
	Close() error
}

// Backend names accepted by Open
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Open creates the store selected by backend, rooted at dir
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir)
	case BackendBolt:
		return NewBoltStore(dir)
	default:
		return nil, errors.New("unknown storage backend: " + backend)
	}
}
