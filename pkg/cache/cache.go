package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/security"
	"github.com/cuemby/heartbeat/pkg/storage"
	"github.com/rs/zerolog"
)

// ErrNoKey is returned by Read for a key that was never written
var ErrNoKey = errors.New("key not in cache")

// Cache is a named, thread-safe map of JSON values that survives restarts.
// Contents are loaded from the store at construction and written back only
// when WriteToDisk is called.
type Cache struct {
	name   string
	store  storage.Store
	cipher security.Cipher
	logger zerolog.Logger

	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// New opens the cache called name. A missing, undecryptable or corrupt blob
// yields an empty cache.
func New(name string, store storage.Store, cipher security.Cipher) *Cache {
	if cipher == nil {
		cipher = security.Plaintext{}
	}

	c := &Cache{
		name:   name,
		store:  store,
		cipher: cipher,
		logger: log.WithComponent("cache").With().Str("cache", name).Logger(),
		values: make(map[string]json.RawMessage),
	}
	c.load()
	return c
}

func (c *Cache) load() {
	blob, err := c.store.Load(c.name)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to load cache, starting empty")
		return
	}

	plain, err := c.cipher.Decrypt(blob)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to decrypt cache, starting empty")
		return
	}

	values := make(map[string]json.RawMessage)
	if err := json.Unmarshal(plain, &values); err != nil {
		c.logger.Warn().Err(err).Msg("Corrupt cache, starting empty")
		return
	}
	c.values = values
}

// Name returns the logical name of the cache
func (c *Cache) Name() string {
	return c.name
}

// Read decodes the value under key into out
func (c *Cache) Read(key string, out any) error {
	c.mu.RLock()
	raw, ok := c.values[key]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoKey, key)
	}
	return json.Unmarshal(raw, out)
}

// Write stores value under key, replacing any previous value
func (c *Cache) Write(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	c.mu.Lock()
	c.values[key] = raw
	c.mu.Unlock()
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}

func (c *Cache) Exists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.values[key]
	return ok
}

// Keys returns every key in sorted order
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Items returns a snapshot of the raw values
func (c *Cache) Items() map[string]json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make(map[string]json.RawMessage, len(c.values))
	for k, v := range c.values {
		items[k] = v
	}
	return items
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// ResetValuesTo overwrites the value of every key with value
func (c *Cache) ResetValuesTo(value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for k := range c.values {
		c.values[k] = raw
	}
	c.mu.Unlock()
	return nil
}

// Update runs fn on the value under key while holding the write lock. fn
// receives nil if the key is absent and returns the new value, or remove=true
// to delete the key.
func (c *Cache) Update(key string, fn func(current json.RawMessage) (next any, remove bool, err error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, remove, err := fn(c.values[key])
	if err != nil {
		return err
	}
	if remove {
		delete(c.values, key)
		return nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	c.values[key] = raw
	return nil
}

// WriteToDisk encrypts the current contents and saves them to the store
func (c *Cache) WriteToDisk() error {
	c.mu.RLock()
	plain, err := json.Marshal(c.values)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode cache %s: %w", c.name, err)
	}

	blob, err := c.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("failed to encrypt cache %s: %w", c.name, err)
	}

	if err := c.store.Save(c.name, blob); err != nil {
		return fmt.Errorf("failed to save cache %s: %w", c.name, err)
	}
	return nil
}
