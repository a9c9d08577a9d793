/*
Package cache provides the persisted key/value maps heartbeat components use
to remember state across restarts, such as the peers a PulseMonitor has seen
or the last event each source produced.

Values are held as JSON in memory behind a read/write mutex. The whole map
is encrypted and handed to a storage.Store only when WriteToDisk is called,
so callers choose when to pay for durability. A blob that cannot be decrypted
or decoded at load time is discarded and the cache starts empty.

	known := cache.New("known-pulses", store, encryptor)
	_ = known.Write("node-a@10.0.0.4", float64(time.Now().Unix()))
	if err := known.WriteToDisk(); err != nil {
		logger.Error().Err(err).Msg("Failed to persist cache")
	}
*/
package cache
