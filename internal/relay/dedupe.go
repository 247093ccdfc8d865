package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Fingerprint derives the dedupe key for a note: the object the event refers
// to, the event kind, and a hash of the content that would be drafted from.
// Redelivered webhook events produce the same fingerprint and are suppressed.
func Fingerprint(objectID, eventKind, content string) string {
	h := sha256.New()
	h.Write([]byte(objectID))
	h.Write([]byte{0})
	h.Write([]byte(eventKind))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// Dedupe is an in-memory index of note fingerprints already written this
// process lifetime. There is no persistence: a restart forgets the index,
// which keeps the at-least-once duplicate window small without adding
// storage the relay otherwise has no use for.
type Dedupe struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupe returns an empty index.
func NewDedupe() *Dedupe {
	return &Dedupe{seen: make(map[string]struct{})}
}

// Seen reports whether fp was already marked.
func (d *Dedupe) Seen(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[fp]
	return ok
}

// Mark records fp. Called only after a successful note write so a failed
// write stays retryable on redelivery.
func (d *Dedupe) Mark(fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[fp] = struct{}{}
}
