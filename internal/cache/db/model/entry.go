package model

import "time"

// Entry is an immutable cache record. A re-put with the same key replaces the
// whole entry, so readers never observe a half-updated one.
type Entry struct {
	key        *Key
	raw        string // original key, used by the mirror store and dumps
	payload    []byte // serialized value, zstd frame when compressed
	compressed bool
	createdAt  int64 // unix nano
	ttl        int64 // nanoseconds, 0 means no expiry
}

func NewEntry(raw string, payload []byte, compressed bool, createdAt time.Time, ttl time.Duration) *Entry {
	return &Entry{
		key:        NewKey(raw),
		raw:        raw,
		payload:    payload,
		compressed: compressed,
		createdAt:  createdAt.UnixNano(),
		ttl:        ttl.Nanoseconds(),
	}
}

func (e *Entry) Key() *Key {
	if e == nil {
		return nil
	}
	return e.key
}

func (e *Entry) Raw() string          { return e.raw }
func (e *Entry) PayloadBytes() []byte { return e.payload }
func (e *Entry) IsCompressed() bool   { return e.compressed }
func (e *Entry) CreatedAt() int64     { return e.createdAt }
func (e *Entry) TTL() time.Duration   { return time.Duration(e.ttl) }
func (e *Entry) Weight() int64        { return int64(len(e.payload)) }

// IsExpired reports whether more than ttl has elapsed since creation.
func (e *Entry) IsExpired(now time.Time) bool {
	if e == nil || e.ttl <= 0 {
		return false
	}
	return now.UnixNano()-e.createdAt > e.ttl
}
