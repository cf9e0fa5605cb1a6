package join

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/metrics"
	"github.com/roach88/livestore/internal/observable"
)

// Join maintains composite records over a fixed set of slots, one per source.
//
// Join is not safe for concurrent use; mutate its sources and the join itself
// from one goroutine.
type Join[P any] struct {
	cfg     config
	sources map[string]entity.Source
	slots   []string

	entries map[string]*entry[P]
	// index[slot][entity id] is the set of entry ids whose key names that
	// entity in that slot.
	index map[string]map[string]map[string]struct{}

	// pending holds the batch opened by a source's created event until the
	// updated event of the same mutation flushes it.
	pending *batch

	subscriptions []subscription
	created       *observable.Channel[[]Composite[P]]
	updated       *observable.Channel[[]Composite[P]]
	deleted       *observable.Channel[[]string]
	complete      *observable.Value[[]Composite[P]]
	disposed      bool
}

type subscription struct {
	source entity.Source
	handle observable.Handle
}

// New creates a Join over sources, keyed by slot name, and subscribes to
// every source's events.
func New[P any](sources map[string]entity.Source, opts ...Option) (*Join[P], error) {
	if len(sources) == 0 {
		return nil, errors.New("join needs at least one source")
	}
	for name, src := range sources {
		if name == "" {
			return nil, errors.New("join slot name is empty")
		}
		if src == nil {
			return nil, fmt.Errorf("join slot %q has no source", name)
		}
	}

	cfg := newConfig(opts)
	j := &Join[P]{
		cfg:     cfg,
		sources: maps.Clone(sources),
		slots:   slices.Sorted(maps.Keys(sources)),
		entries: make(map[string]*entry[P]),
		index:   make(map[string]map[string]map[string]struct{}),
		created: observable.NewChannel[[]Composite[P]](cfg.dispatchOptions(cfg.name + "." + entity.Created)...),
		updated: observable.NewChannel[[]Composite[P]](cfg.dispatchOptions(cfg.name + "." + entity.Updated)...),
		deleted: observable.NewChannel[[]string](cfg.dispatchOptions(cfg.name + "." + entity.Deleted)...),
	}
	j.complete = observable.NewValue(make([]Composite[P], 0), cfg.dispatchOptions(cfg.name)...)

	for _, slot := range j.slots {
		j.index[slot] = make(map[string]map[string]struct{})
	}
	for _, g := range groupSlots(j.sources, j.slots) {
		src, slots := g.source, g.slots
		j.subscriptions = append(j.subscriptions,
			subscription{src, src.OnCreated(func(es []entity.Entity) { j.fill(slots, es, false) })},
			subscription{src, src.OnUpdated(func(es []entity.Entity) { j.fill(slots, es, true) })},
			subscription{src, src.OnDeleted(func(ids []string) { j.clear(slots, ids) })},
		)
	}
	return j, nil
}

type slotGroup struct {
	source entity.Source
	slots  []string
}

// groupSlots collects the slots served by each distinct source, compared with
// ==, so a join over one store in several slots subscribes to it once.
func groupSlots(sources map[string]entity.Source, slots []string) []slotGroup {
	var groups []slotGroup
	for _, slot := range slots {
		src := sources[slot]
		i := slices.IndexFunc(groups, func(g slotGroup) bool { return g.source == src })
		if i < 0 {
			groups = append(groups, slotGroup{source: src})
			i = len(groups) - 1
		}
		groups[i].slots = append(groups[i].slots, slot)
	}
	return groups
}

// Name returns the join's configured name.
func (j *Join[P]) Name() string {
	return j.cfg.name
}

// Slots returns the slot names in their fixed order.
func (j *Join[P]) Slots() []string {
	return slices.Clone(j.slots)
}

// PayloadRequired reports whether entries need a payload to be complete.
func (j *Join[P]) PayloadRequired() bool {
	return j.cfg.payloadRequired
}

// Entry is one input to Update.
type Entry[P any] struct {
	Key     Key
	Payload *P
}

// Update registers or refreshes entries. Every key is validated first; if
// any is malformed nothing is applied and a *KeyError is returned.
//
// A known entry keeps the entities already resolved for its slots and takes
// the new payload. A new entry is indexed under each of its ids and its slots
// are resolved from the sources right away.
//
// After the batch, updated carries every touched entry that is complete and
// created carries those among them that just became complete. Entries that
// stopped being complete, for instance because a required payload was
// withdrawn, are reported on deleted.
func (j *Join[P]) Update(entries ...Entry[P]) error {
	if j.disposed || len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		if err := validate(j.cfg.name, j.slots, e.Key); err != nil {
			return err
		}
		id, err := e.Key.Token()
		if err != nil {
			return &KeyError{Join: j.cfg.name, Key: e.Key, Reason: err.Error()}
		}
		ids[i] = id
	}

	b := j.newBatch()
	for i, in := range entries {
		id := ids[i]
		e, known := j.entries[id]
		j.touch(b, id, e)
		if !known {
			e = &entry[P]{id: id, key: in.Key.Clone(), slots: make(map[string]entity.Entity)}
			j.entries[id] = e
			for _, slot := range j.slots {
				j.indexAdd(slot, e.key[slot], id)
			}
		}
		for _, slot := range j.slots {
			if _, filled := e.slots[slot]; filled {
				continue
			}
			if ent, ok := j.sources[slot].Lookup(e.key[slot]); ok {
				e.slots[slot] = ent
			}
		}
		e.payload = in.Payload
	}

	j.cfg.metrics.RecordMutation(j.cfg.name, metrics.OpJoin, len(entries))
	j.flush(b)
	return nil
}

// Remove drops the entries for keys and releases their index entries. Entries
// that were complete are reported on deleted. Unknown keys are ignored;
// malformed keys fail the whole call before anything is removed.
func (j *Join[P]) Remove(keys ...Key) error {
	if j.disposed || len(keys) == 0 {
		return nil
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		if err := validate(j.cfg.name, j.slots, k); err != nil {
			return err
		}
		id, err := k.Token()
		if err != nil {
			return &KeyError{Join: j.cfg.name, Key: k, Reason: err.Error()}
		}
		ids[i] = id
	}

	b := j.newBatch()
	removed := 0
	for _, id := range ids {
		e, ok := j.entries[id]
		if !ok {
			continue
		}
		j.touch(b, id, e)
		delete(j.entries, id)
		for _, slot := range j.slots {
			j.indexRemove(slot, e.key[slot], id)
		}
		removed++
	}
	if removed == 0 {
		return nil
	}

	j.cfg.metrics.RecordMutation(j.cfg.name, metrics.OpUnjoin, removed)
	j.flush(b)
	return nil
}

// fill handles created and updated events from the source behind slots.
// Entries sharing an entity are visited in id order.
//
// A store emits created and then updated for one mutation, and updated
// carries every entity created carried. The created pass only fills slots
// into the pending batch; the updated pass flushes it, so the join emits once
// per source mutation.
func (j *Join[P]) fill(slots []string, entities []entity.Entity, flush bool) {
	if j.disposed {
		return
	}
	b := j.pending
	if b == nil {
		b = j.newBatch()
	}
	for _, slot := range slots {
		for _, ent := range entities {
			for _, id := range slices.Sorted(maps.Keys(j.index[slot][ent.EntityID()])) {
				e := j.entries[id]
				j.touch(b, id, e)
				e.slots[slot] = ent
			}
		}
	}
	if !flush {
		j.pending = b
		return
	}
	j.pending = nil
	j.flush(b)
}

// clear handles deleted events from the source behind slots. Index entries
// are kept: the entry still names the id, so a later re-creation fills the
// slot again.
func (j *Join[P]) clear(slots []string, ids []string) {
	if j.disposed {
		return
	}
	b := j.newBatch()
	for _, slot := range slots {
		for _, entityID := range ids {
			for _, id := range slices.Sorted(maps.Keys(j.index[slot][entityID])) {
				e := j.entries[id]
				if _, filled := e.slots[slot]; !filled {
					continue
				}
				j.touch(b, id, e)
				delete(e.slots, slot)
			}
		}
	}
	j.flush(b)
}

func (j *Join[P]) indexAdd(slot, entityID, id string) {
	refs, ok := j.index[slot][entityID]
	if !ok {
		refs = make(map[string]struct{})
		j.index[slot][entityID] = refs
	}
	refs[id] = struct{}{}
}

func (j *Join[P]) indexRemove(slot, entityID, id string) {
	refs, ok := j.index[slot][entityID]
	if !ok {
		return
	}
	delete(refs, id)
	if len(refs) == 0 {
		delete(j.index[slot], entityID)
	}
}

// batch records which entries one operation touched, in first-touch order,
// and whether each was complete before that first touch.
type batch struct {
	order []string
	was   map[string]bool
}

func (j *Join[P]) newBatch() *batch {
	return &batch{was: make(map[string]bool)}
}

func (j *Join[P]) touch(b *batch, id string, e *entry[P]) {
	if _, seen := b.was[id]; seen {
		return
	}
	b.order = append(b.order, id)
	b.was[id] = e != nil && j.state(e) == Complete
}

// flush emits the outcome of a batch: deleted for entries that left the
// complete state, updated for every touched entry that is complete, then
// created for those that just became complete.
func (j *Join[P]) flush(b *batch) {
	if len(b.order) == 0 {
		return
	}
	var updated, created []Composite[P]
	var deleted []string
	for _, id := range b.order {
		e, ok := j.entries[id]
		if ok && j.state(e) == Complete {
			c := e.composite()
			updated = append(updated, c)
			if !b.was[id] {
				created = append(created, c)
			}
			continue
		}
		if b.was[id] {
			deleted = append(deleted, id)
		}
	}
	j.recordState()
	if len(updated) == 0 && len(deleted) == 0 {
		return
	}

	j.complete.Set(j.Complete())
	j.cfg.logger.Debug("join changed",
		"join", j.cfg.name,
		"created", len(created),
		"updated", len(updated),
		"deleted", len(deleted),
	)
	if len(deleted) > 0 {
		j.cfg.metrics.RecordEmission(j.cfg.name, entity.Deleted, len(deleted))
		j.deleted.Emit(deleted)
	}
	if len(updated) > 0 {
		j.cfg.metrics.RecordEmission(j.cfg.name, entity.Updated, len(updated))
		j.updated.Emit(updated)
	}
	if len(created) > 0 {
		j.cfg.metrics.RecordEmission(j.cfg.name, entity.Created, len(created))
		j.created.Emit(created)
	}
}

func (j *Join[P]) recordState() {
	complete := 0
	for _, e := range j.entries {
		if j.state(e) == Complete {
			complete++
		}
	}
	j.cfg.metrics.RecordJoinState(j.cfg.name, complete, len(j.entries)-complete)
}

func (j *Join[P]) state(e *entry[P]) State {
	return e.state(len(j.slots), j.cfg.payloadRequired)
}

func (j *Join[P]) info(e *entry[P]) Info[P] {
	filled := make([]string, 0, len(e.slots))
	for _, slot := range j.slots {
		if _, ok := e.slots[slot]; ok {
			filled = append(filled, slot)
		}
	}
	return Info[P]{
		ID:      e.id,
		Key:     e.key.Clone(),
		State:   j.state(e),
		Filled:  filled,
		Payload: e.payload,
	}
}

// Get describes the entry for key. It reports false for unknown or malformed
// keys.
func (j *Join[P]) Get(key Key) (Info[P], bool) {
	if validate(j.cfg.name, j.slots, key) != nil {
		return Info[P]{}, false
	}
	id, err := key.Token()
	if err != nil {
		return Info[P]{}, false
	}
	e, ok := j.entries[id]
	if !ok {
		return Info[P]{}, false
	}
	return j.info(e), true
}

// Entries describes every entry, complete or not, sorted by id.
func (j *Join[P]) Entries() []Info[P] {
	out := make([]Info[P], 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, j.info(e))
	}
	slices.SortFunc(out, func(a, b Info[P]) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Complete returns the composite of every complete entry, sorted by id.
func (j *Join[P]) Complete() []Composite[P] {
	out := make([]Composite[P], 0, len(j.entries))
	for _, e := range j.entries {
		if j.state(e) == Complete {
			out = append(out, e.composite())
		}
	}
	slices.SortFunc(out, func(a, b Composite[P]) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Observe returns a handle onto the list of complete composites. It is
// republished whenever the join emits.
func (j *Join[P]) Observe() *observable.Observable[[]Composite[P]] {
	return observable.Wrap[[]Composite[P]](j.complete)
}

// OnCreated registers a handler for entries that became complete.
func (j *Join[P]) OnCreated(handler func([]Composite[P])) observable.Handle {
	return j.created.On(handler)
}

// OnUpdated registers a handler for recomputed complete entries.
func (j *Join[P]) OnUpdated(handler func([]Composite[P])) observable.Handle {
	return j.updated.On(handler)
}

// OnDeleted registers a handler for ids of entries that stopped being
// complete.
func (j *Join[P]) OnDeleted(handler func([]string)) observable.Handle {
	return j.deleted.On(handler)
}

// Off removes a registration. Unknown handles are ignored.
func (j *Join[P]) Off(h observable.Handle) {
	if j.created.Off(h) || j.updated.Off(h) {
		return
	}
	j.deleted.Off(h)
}

// Dispose unsubscribes from every source and drops all entries and
// handlers. Later source events are ignored. Safe to call more than once.
func (j *Join[P]) Dispose() {
	if j.disposed {
		return
	}
	j.disposed = true
	for _, sub := range j.subscriptions {
		sub.source.Off(sub.handle)
	}
	j.subscriptions = nil
	j.pending = nil
	clear(j.entries)
	clear(j.index)
	j.created.Clear()
	j.updated.Clear()
	j.deleted.Clear()
	j.complete.Clear()
	j.cfg.logger.Debug("join disposed", "join", j.cfg.name)
}
