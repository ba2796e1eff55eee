package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Borislavv/go-ash-perf/internal/cache/db/model"
	models "github.com/Borislavv/go-ash-perf/model"
)

// StoreKeyPrefix namespaces mirrored entries inside a shared store.
const StoreKeyPrefix = "ashperf:"

// envelope is the string form of an entry in the persistent store.
type envelope struct {
	Payload    []byte `json:"p"`
	Compressed bool   `json:"z,omitempty"`
	CreatedAt  int64  `json:"c"`
	TTL        int64  `json:"t"`
}

func marshalEnvelope(e *model.Entry) (string, error) {
	data, err := json.Marshal(envelope{
		Payload:    e.PayloadBytes(),
		Compressed: e.IsCompressed(),
		CreatedAt:  e.CreatedAt(),
		TTL:        int64(e.TTL()),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalEnvelope(key, value string) (*model.Entry, error) {
	var env envelope
	if err := json.Unmarshal([]byte(value), &env); err != nil {
		return nil, fmt.Errorf("decode mirrored entry %s: %w", key, err)
	}
	return model.NewEntry(key, env.Payload, env.Compressed, time.Unix(0, env.CreatedAt), time.Duration(env.TTL)), nil
}

// persist mirror-writes an entry. Failures are counted and logged, never returned.
func (c *Cache) persist(e *model.Entry) {
	if c.store == nil {
		return
	}
	value, err := marshalEnvelope(e)
	if err == nil {
		err = c.store.Set(StoreKeyPrefix+e.Raw(), value)
	}
	if err != nil {
		c.counters.storeFailures.Add(1)
		c.logger.Warn("persistent store write failed", "key", e.Raw(), "err", err)
	}
}

func (c *Cache) unpersist(raw string) {
	if c.store == nil {
		return
	}
	if err := c.store.Remove(StoreKeyPrefix + raw); err != nil && !errors.Is(err, models.ErrNotFound) {
		c.counters.storeFailures.Add(1)
		c.logger.Warn("persistent store remove failed", "key", raw, "err", err)
	}
}

// Load pulls a mirrored entry back into memory, e.g. after a restart.
// Absent, broken or expired records load nothing; store errors are swallowed.
func (c *Cache) Load(key string) bool {
	if c.store == nil {
		return false
	}
	value, err := c.store.Get(StoreKeyPrefix + key)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			c.counters.storeFailures.Add(1)
			c.logger.Warn("persistent store read failed", "key", key, "err", err)
		}
		return false
	}
	entry, err := unmarshalEnvelope(key, value)
	if err != nil {
		c.logger.Warn("dropping broken mirrored entry", "key", key, "err", err)
		c.unpersist(key)
		return false
	}
	return c.Restore(entry)
}
