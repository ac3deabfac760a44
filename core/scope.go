package core

import (
	"sort"

	"github.com/xiaq/persistent/hash"
	"github.com/xiaq/persistent/hashmap"
)

// Scope is the set of object instances visible to the executing event,
// keyed by object name. A name is loaded from the object table the first
// time it is picked; from then on it is "concerned" and conditions narrow it.
//
// The name map is persistent: Inherit shares it with the parent and every
// mutation produces a new version, so a child never leaks changes upward and
// one loop iteration never sees the previous iteration's narrowing.
type Scope struct {
	table  *ObjectTable
	picked hashmap.Map // string -> []ObjectID, stored slices are never mutated
}

var emptyPicks = hashmap.New(
	func(a, b any) bool { return a.(string) == b.(string) },
	func(k any) uint32 { return hash.String(k.(string)) },
)

// NewScope returns a root scope over table in which nothing is concerned yet.
func NewScope(table *ObjectTable) *Scope {
	return &Scope{table: table, picked: emptyPicks}
}

// Table returns the object table the scope resolves against.
func (s *Scope) Table() *ObjectTable { return s.table }

// Inherit returns a child scope starting from the current picks.
func (s *Scope) Inherit() *Scope {
	return &Scope{table: s.table, picked: s.picked}
}

// Concerned reports whether name has been picked in this scope.
func (s *Scope) Concerned(name string) bool {
	return hashmap.HasKey(s.picked, name)
}

// Pick returns the instances of name visible in the scope. Instances deleted
// since they were picked are dropped.
func (s *Scope) Pick(name string) []ObjectID {
	if v, ok := s.picked.Index(name); ok {
		ids := v.([]ObjectID)
		live := ids[:0:0]
		for _, id := range ids {
			if s.table.Alive(id) {
				live = append(live, id)
			}
		}
		if len(live) != len(ids) {
			s.picked = s.picked.Assoc(name, live)
		}
		return append([]ObjectID(nil), live...)
	}
	ids := s.table.Instances(name)
	s.picked = s.picked.Assoc(name, ids)
	return append([]ObjectID(nil), ids...)
}

// PickAndRemove picks name and leaves it concerned but empty in this scope.
func (s *Scope) PickAndRemove(name string) []ObjectID {
	ids := s.Pick(name)
	s.picked = s.picked.Assoc(name, []ObjectID{})
	return ids
}

// Narrow replaces the visible instances of name with keep.
func (s *Scope) Narrow(name string, keep []ObjectID) {
	s.picked = s.picked.Assoc(name, append([]ObjectID(nil), keep...))
}

// AddObject makes a single instance visible. If its name is not concerned
// yet, the instance becomes the only visible one.
func (s *Scope) AddObject(id ObjectID) {
	obj := s.table.Get(id)
	if obj == nil {
		return
	}
	var ids []ObjectID
	if v, ok := s.picked.Index(obj.Name); ok {
		ids = v.([]ObjectID)
		if containsID(ids, id) {
			return
		}
	}
	next := make([]ObjectID, 0, len(ids)+1)
	next = append(next, ids...)
	next = append(next, id)
	s.picked = s.picked.Assoc(obj.Name, next)
}

// Names returns the concerned names, sorted.
func (s *Scope) Names() []string {
	names := make([]string, 0, s.picked.Len())
	for it := s.picked.Iterator(); it.HasElem(); it.Next() {
		k, _ := it.Elem()
		names = append(names, k.(string))
	}
	sort.Strings(names)
	return names
}
