package join

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/livestore/internal/canon"
)

// ErrMalformedKey is wrapped by every KeyError.
var ErrMalformedKey = errors.New("malformed join key")

// Key maps each slot name to a foreign entity id.
type Key map[string]string

// Token returns the canonical encoding of k. It doubles as the id of the
// composite record.
func (k Key) Token() (string, error) {
	return canon.Token(map[string]string(k))
}

// Clone returns a copy of k.
func (k Key) Clone() Key {
	return maps.Clone(k)
}

// KeyError reports a key that does not fit a join's slots.
type KeyError struct {
	Join   string
	Key    Key
	Slot   string
	Reason string
}

func (e *KeyError) Error() string {
	if e.Slot == "" {
		return fmt.Sprintf("join %q: key %v: %s", e.Join, map[string]string(e.Key), e.Reason)
	}
	return fmt.Sprintf("join %q: key %v: slot %q: %s", e.Join, map[string]string(e.Key), e.Slot, e.Reason)
}

func (e *KeyError) Unwrap() error {
	return ErrMalformedKey
}

// validate checks that key names exactly the given slots with non-empty ids.
func validate(join string, slots []string, key Key) error {
	if key == nil {
		return &KeyError{Join: join, Key: key, Reason: "key is nil"}
	}
	for _, slot := range slots {
		id, ok := key[slot]
		if !ok {
			return &KeyError{Join: join, Key: key, Slot: slot, Reason: "missing"}
		}
		if id == "" {
			return &KeyError{Join: join, Key: key, Slot: slot, Reason: "empty id"}
		}
	}
	if len(key) != len(slots) {
		for _, name := range slices.Sorted(maps.Keys(key)) {
			if !slices.Contains(slots, name) {
				return &KeyError{Join: join, Key: key, Slot: name, Reason: "unknown slot"}
			}
		}
	}
	return nil
}
