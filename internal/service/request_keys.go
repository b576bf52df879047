package service

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RequestKeys derives per-mutation idempotency keys from one request key.
// The same request replayed with the same base key produces the same sequence
// of keys, so ledger mutations that already landed are not applied twice.
type RequestKeys struct {
	base     string
	supplied bool
	mu       sync.Mutex
	seq      map[string]int
}

// NewRequestKeys uses base when the caller supplied one (the Idempotency-Key
// header) and a fresh uuid otherwise.
func NewRequestKeys(base string) *RequestKeys {
	k := &RequestKeys{base: base, supplied: base != "", seq: map[string]int{}}
	if !k.supplied {
		k.base = uuid.NewString()
	}
	return k
}

func (k *RequestKeys) Base() string { return k.base }

// Supplied reports whether the base key came from the caller, which makes
// document creation replayable.
func (k *RequestKeys) Supplied() bool { return k.supplied }

// documentKey is the value stored on an order, delivery or added order line
// for replay lookup.
func (k *RequestKeys) documentKey() *string {
	if k == nil || !k.supplied {
		return nil
	}
	key := k.base
	return &key
}

// Next returns <base>:<line item>:<op>:<n> where n counts prior calls for the
// same line item and op within this request.
func (k *RequestKeys) Next(lineItemID uuid.UUID, op string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot := lineItemID.String() + ":" + op
	n := k.seq[slot]
	k.seq[slot] = n + 1
	return fmt.Sprintf("%s:%s:%d", k.base, slot, n)
}

// Scoped derives the keys for one operation on one target document or line.
// Reusing a request key against a different target yields disjoint ledger
// keys, so it can never replay another target's mutations.
func (k *RequestKeys) Scoped(op string, target uuid.UUID) *RequestKeys {
	if k == nil {
		k = NewRequestKeys("")
	}
	return &RequestKeys{
		base:     fmt.Sprintf("%s:%s:%s", k.base, op, target),
		supplied: k.supplied,
		seq:      map[string]int{},
	}
}
