package roster

import (
	"sort"
	"sync"

	"checkin/internal/attendee"
)

type entry struct {
	person attendee.Person
	rev    uint64
}

// Roster is the in-memory collection of one kind, kept in store (name) order.
// Every write bumps a per-record revision used by CompareAndSwap.
type Roster struct {
	kind attendee.Kind

	mu    sync.RWMutex
	order []string
	byID  map[string]*entry
	rev   uint64
}

// New returns an empty roster for kind.
func New(kind attendee.Kind) *Roster {
	return &Roster{kind: kind, byID: map[string]*entry{}}
}

// Kind returns the variant held by the roster.
func (r *Roster) Kind() attendee.Kind { return r.kind }

// Replace swaps the whole collection. People without an id or a non-blank name
// and duplicate ids are discarded. It returns how many were kept.
func (r *Roster) Replace(people []attendee.Person) int {
	order := make([]string, 0, len(people))
	byID := make(map[string]*entry, len(people))

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range people {
		if !p.Valid() || p.Kind != r.kind {
			continue
		}
		if _, dup := byID[p.ID]; dup {
			continue
		}
		r.rev++
		byID[p.ID] = &entry{person: p.Clone(), rev: r.rev}
		order = append(order, p.ID)
	}
	r.order, r.byID = order, byID
	return len(order)
}

// Get returns the person with id and its current revision.
func (r *Roster) Get(id string) (attendee.Person, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return attendee.Person{}, 0, false
	}
	return e.person.Clone(), e.rev, true
}

// Put replaces the person with the same id in place, or inserts it in name
// order when absent. It returns the new revision.
func (r *Roster) Put(p attendee.Person) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.put(p)
}

// CompareAndSwap stores p only if the record is still at revision rev.
func (r *Roster) CompareAndSwap(id string, rev uint64, p attendee.Person) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok || e.rev != rev {
		return false
	}
	r.put(p)
	return true
}

func (r *Roster) put(p attendee.Person) uint64 {
	r.rev++
	if e, ok := r.byID[p.ID]; ok {
		e.person, e.rev = p.Clone(), r.rev
		return r.rev
	}

	i := sort.Search(len(r.order), func(i int) bool {
		return r.byID[r.order[i]].person.Name > p.Name
	})
	r.order = append(r.order, "")
	copy(r.order[i+1:], r.order[i:])
	r.order[i] = p.ID
	r.byID[p.ID] = &entry{person: p.Clone(), rev: r.rev}
	return r.rev
}

// Snapshot returns a copy of the collection in roster order.
func (r *Roster) Snapshot() []attendee.Person {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]attendee.Person, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].person.Clone())
	}
	return out
}

// Len returns the number of people held.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
