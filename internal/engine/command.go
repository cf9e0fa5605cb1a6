package engine

import (
	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/join"
)

// Command is one unit of work applied to a Runtime on the writer goroutine.
type Command interface {
	Apply(rt *Runtime) error
}

// UpdateRecords upserts records into a store.
type UpdateRecords struct {
	Store   string
	Records []entity.Record
}

func (c UpdateRecords) Apply(rt *Runtime) error {
	return rt.Update(c.Store, c.Records...)
}

// DeleteRecords removes ids from a store.
type DeleteRecords struct {
	Store string
	IDs   []string
}

func (c DeleteRecords) Apply(rt *Runtime) error {
	return rt.Delete(c.Store, c.IDs...)
}

// JoinUpdate registers or refreshes join entries.
type JoinUpdate struct {
	Join    string
	Entries []join.Entry[Payload]
}

func (c JoinUpdate) Apply(rt *Runtime) error {
	return rt.Link(c.Join, c.Entries...)
}

// JoinRemove removes join entries.
type JoinRemove struct {
	Join string
	Keys []join.Key
}

func (c JoinRemove) Apply(rt *Runtime) error {
	return rt.Unlink(c.Join, c.Keys...)
}

// Read runs Fn on the writer goroutine. Use it to read consistent state from
// other goroutines.
type Read struct {
	Fn func(rt *Runtime) error
}

func (c Read) Apply(rt *Runtime) error {
	return c.Fn(rt)
}

func commandName(cmd Command) string {
	switch c := cmd.(type) {
	case UpdateRecords:
		return "update:" + c.Store
	case DeleteRecords:
		return "delete:" + c.Store
	case JoinUpdate:
		return "join:" + c.Join
	case JoinRemove:
		return "unjoin:" + c.Join
	case Read:
		return "read"
	default:
		return "unknown"
	}
}
