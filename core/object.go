package core

import "sort"

// ObjectID is a handle into an ObjectTable. Handles are never reused within
// a table, so a stale handle simply stops resolving after Delete.
type ObjectID uint32

// NoObject is the "no object" sentinel.
const NoObject ObjectID = 0

// BaseType is the capability table every object type falls back to.
const BaseType = "Base"

// Object is one live instance in a scene.
type Object struct {
	ID        ObjectID
	Name      string // identifier used by events, e.g. "Enemy"
	Type      string // capability table key
	X, Y      float64
	Angle     float64
	Variables *Variables
}

// ObjectTable owns every object instance of a scene. Events and expressions
// hold ObjectIDs only.
type ObjectTable struct {
	objects []*Object // index id-1, nil once deleted
	byName  map[string][]ObjectID
	types   map[string]string
}

// NewObjectTable returns an empty object table.
func NewObjectTable() *ObjectTable {
	return &ObjectTable{
		byName: make(map[string][]ObjectID),
		types:  make(map[string]string),
	}
}

// DeclareType binds an object name to an object type. Undeclared names use
// BaseType.
func (t *ObjectTable) DeclareType(name, typ string) {
	t.types[name] = typ
}

// TypeOf returns the object type declared for name.
func (t *ObjectTable) TypeOf(name string) string {
	if typ, ok := t.types[name]; ok && typ != "" {
		return typ
	}
	return BaseType
}

// Create adds a new instance of name at (x, y) and returns its handle.
func (t *ObjectTable) Create(name string, x, y float64) ObjectID {
	id := ObjectID(len(t.objects) + 1)
	t.objects = append(t.objects, &Object{
		ID:        id,
		Name:      name,
		Type:      t.TypeOf(name),
		X:         x,
		Y:         y,
		Variables: NewVariables(),
	})
	t.byName[name] = append(t.byName[name], id)
	return id
}

// Delete removes an instance. It reports whether the handle was live.
func (t *ObjectTable) Delete(id ObjectID) bool {
	obj := t.Get(id)
	if obj == nil {
		return false
	}
	t.objects[id-1] = nil
	ids := t.byName[obj.Name]
	for i, other := range ids {
		if other == id {
			// copy so slices handed out by Instances stay untouched
			next := make([]ObjectID, 0, len(ids)-1)
			next = append(next, ids[:i]...)
			next = append(next, ids[i+1:]...)
			t.byName[obj.Name] = next
			break
		}
	}
	return true
}

// Get resolves a handle, returning nil for NoObject or a deleted instance.
func (t *ObjectTable) Get(id ObjectID) *Object {
	if id == NoObject || int(id) > len(t.objects) {
		return nil
	}
	return t.objects[id-1]
}

// Alive reports whether id resolves to a live instance.
func (t *ObjectTable) Alive(id ObjectID) bool {
	return t.Get(id) != nil
}

// Instances returns the live instances of name in creation order.
func (t *ObjectTable) Instances(name string) []ObjectID {
	return append([]ObjectID(nil), t.byName[name]...)
}

// Count returns the number of live instances of name.
func (t *ObjectTable) Count(name string) int {
	return len(t.byName[name])
}

// Len returns the number of live instances in the table.
func (t *ObjectTable) Len() int {
	n := 0
	for _, ids := range t.byName {
		n += len(ids)
	}
	return n
}

// Names returns every object name that has been declared or instantiated,
// sorted.
func (t *ObjectTable) Names() []string {
	seen := make(map[string]struct{}, len(t.byName)+len(t.types))
	for name := range t.byName {
		seen[name] = struct{}{}
	}
	for name := range t.types {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve picks the instance an object reference denotes among picked:
// obj1 if picked, else obj2 if picked, else the first picked instance.
func Resolve(picked []ObjectID, obj1, obj2 ObjectID) ObjectID {
	if len(picked) == 0 {
		return NoObject
	}
	if obj1 != NoObject && containsID(picked, obj1) {
		return obj1
	}
	if obj2 != NoObject && containsID(picked, obj2) {
		return obj2
	}
	return picked[0]
}

func containsID(ids []ObjectID, id ObjectID) bool {
	for _, other := range ids {
		if other == id {
			return true
		}
	}
	return false
}
