package state

import "fmt"

// TestObjectKey identifies a test object by category (e.g. "table_rule",
// "register") and name (e.g. the table's or register instance's
// fully-qualified name).
type TestObjectKey struct {
	Category string
	Name     string
}

func (k TestObjectKey) String() string { return fmt.Sprintf("%s:%s", k.Category, k.Name) }

// TestObject is anything the test serializer (outside this core) needs to
// turn a terminal state into a concrete test case beyond the plain
// input/output packet: a table's chosen action and arguments, a register's
// final contents, a chosen clone session, and so on. The core only stores
// and copies these opaquely; it never interprets their contents.
type TestObject interface {
	TestObjectCategory() string
}

// TestObjectStore is a category+name keyed collection of TestObjects,
// backed by a plain map copied on Clone/Fork — test objects are typically
// few (one per table touched, one per register instance) so a persistent
// tree buys nothing here, unlike the Environment's much hotter field map.
type TestObjectStore struct {
	m map[TestObjectKey]TestObject
}

// NewTestObjectStore returns an empty store.
func NewTestObjectStore() *TestObjectStore {
	return &TestObjectStore{m: make(map[TestObjectKey]TestObject)}
}

// Get returns the object for key, and whether it exists.
func (s *TestObjectStore) Get(key TestObjectKey) (TestObject, bool) {
	v, ok := s.m[key]
	return v, ok
}

// Set stores obj under key.
func (s *TestObjectStore) Set(key TestObjectKey, obj TestObject) {
	s.m[key] = obj
}

// All returns every stored object, for the inspect/generate callback to
// render.
func (s *TestObjectStore) All() map[TestObjectKey]TestObject {
	return s.m
}

// Clone returns a copy of the store's key-to-object map. The objects
// themselves are shared between the copies, so an update replaces the
// object stored under its key rather than changing it in place.
func (s *TestObjectStore) Clone() *TestObjectStore {
	m := make(map[TestObjectKey]TestObject, len(s.m))
	for k, v := range s.m {
		m[k] = v
	}
	return &TestObjectStore{m: m}
}
