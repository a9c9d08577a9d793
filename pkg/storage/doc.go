/*
Package storage persists the encrypted blobs behind heartbeat's caches.

A Store maps a logical blob name to opaque bytes. Callers encrypt before
saving, so neither backend ever handles plaintext.

# Backends

	┌─────────────── STORAGE ────────────────┐
	│                                         │
	│  FileStore                              │
	│   <dir>/<hex sha256(name)>              │
	│   write temp file, fsync, rename        │
	│                                         │
	│  BoltStore                              │
	│   <dir>/heartbeat.db                    │
	│   bucket "caches", key = name           │
	│                                         │
	└─────────────────────────────────────────┘

FileStore is the default. BoltStore keeps every cache in one bbolt file,
which suits nodes with many caches or filesystems that dislike many small
files.

# Usage

	store, err := storage.Open(storage.BackendBolt, "/var/lib/heartbeat")
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save("known-pulses", blob); err != nil {
		return err
	}

	blob, err = store.Load("known-pulses")
	if errors.Is(err, storage.ErrNotFound) {
		// first run
	}
*/
package storage
