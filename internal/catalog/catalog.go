// Package catalog implements the concurrency-safe device catalog: a
// mapping from "<endpointId>_<deviceId>" to the name/usage/metadata
// collected from several distinct gateway message families, used to
// hydrate later data frames once their endpoint becomes known.
package catalog

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/mitchellh/copystructure"

	"github.com/sideeffect-io/tydom-go/internal/jsonvalue"
)

// jsonvalue.Value keeps its contents in unexported fields, which
// copystructure's reflection walk skips; registering Value.Copy as its
// copier makes deepCopyRecord clone metadata values instead of zeroing them.
func init() {
	copystructure.Copiers[reflect.TypeOf(jsonvalue.Value{})] = func(v any) (any, error) {
		return v.(jsonvalue.Value).Copy()
	}
}

// Entry is an upsert payload: only non-nil fields are written by Upsert,
// leaving unset fields on the existing record untouched.
type Entry struct {
	UniqueID string
	Name     *string
	Usage    *string
	Metadata map[string]jsonvalue.Value
}

// Record is a hydrated catalog entry.
type Record struct {
	UniqueID string
	Name     string
	Usage    string
	Metadata map[string]jsonvalue.Value
}

// Catalog is the device catalog. The zero value is not usable; use New.
// Safe for concurrent use; Upsert is the only mutator, and the decoder
// both reads and upserts through the same instance.
type Catalog struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{records: make(map[string]*Record)}
}

// Upsert merges e into the existing record for e.UniqueID (creating one if
// absent). Only fields present on e are written. Idempotent and
// order-insensitive across disjoint field sets; writing the same field
// twice is last-write-wins.
func (c *Catalog) Upsert(e Entry) {
	if e.UniqueID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[e.UniqueID]
	if !ok {
		rec = &Record{UniqueID: e.UniqueID, Metadata: map[string]jsonvalue.Value{}}
		c.records[e.UniqueID] = rec
	}
	if e.Name != nil {
		rec.Name = *e.Name
	}
	if e.Usage != nil {
		rec.Usage = *e.Usage
	}
	for k, v := range e.Metadata {
		rec.Metadata[k] = v
	}
}

// DeviceInfo returns a hydrated Record for uniqueID only when both name
// and usage are known (non-empty); otherwise ok is false. The returned
// Record is a deep copy: callers cannot mutate the catalog's internal
// state by way of an aliased map.
func (c *Catalog) DeviceInfo(uniqueID string) (rec Record, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, found := c.records[uniqueID]
	if !found || r.Name == "" || r.Usage == "" {
		return Record{}, false
	}
	return deepCopyRecord(r), true
}

// Usage returns the raw usage string for uniqueID, regardless of whether
// name is also known. Used by the decoder's cdata routing, which only
// needs to check usage == "conso".
func (c *Catalog) Usage(uniqueID string) (usage string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, found := c.records[uniqueID]
	if !found {
		return "", false
	}
	return r.Usage, true
}

func deepCopyRecord(r *Record) Record {
	cloned, err := copystructure.Copy(r.Metadata)
	if err != nil {
		// copystructure only fails on unsupported/cyclic types; our
		// metadata values are plain jsonvalue.Value trees, so this
		// path is unreachable in practice. Fall back to the original
		// map rather than panic.
		return Record{UniqueID: r.UniqueID, Name: r.Name, Usage: r.Usage, Metadata: r.Metadata}
	}
	metadata, ok := cloned.(map[string]jsonvalue.Value)
	if !ok {
		panic(fmt.Sprintf("catalog: unexpected copystructure result type %T", cloned))
	}
	return Record{UniqueID: r.UniqueID, Name: r.Name, Usage: r.Usage, Metadata: metadata}
}

// UniqueID builds the "<endpointId>_<deviceId>" key used throughout the
// protocol.
func UniqueID(endpointID, deviceID int) string {
	return fmt.Sprintf("%d_%d", endpointID, deviceID)
}
