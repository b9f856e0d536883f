// Package memstore is an in-memory message store provider. It backs the
// engine tests, where its instrumentation counters (item fetches, move
// calls) and failure injection hooks make traversal and move behavior
// observable, and it works as a scratch backend for experiments.
package memstore

import (
	"fmt"
	"time"

	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

// Session holds a set of named stores. Stores are registered up front with
// AddStore; OpenStore with create adds an empty one on demand.
type Session struct {
	stores      map[string]*Store
	defaultName string

	// MoveCalls counts every Item.MoveTo invocation across the session,
	// including failed ones. Dry-run tests assert it stays zero.
	MoveCalls int

	// ReclaimCalls counts Reclaim invocations.
	ReclaimCalls int

	// DetachCalls counts DetachStore invocations.
	DetachCalls int
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{stores: make(map[string]*Store)}
}

// AddStore registers a store under name and returns it for seeding.
func (s *Session) AddStore(name string) *Store {
	store := newStore(s, name)
	s.stores[name] = store
	return store
}

// SetDefault marks the store that DefaultStore resolves to.
func (s *Session) SetDefault(name string) {
	s.defaultName = name
}

// OpenStore implements provider.Session.
func (s *Session) OpenStore(path string, create bool) (provider.Store, error) {
	if store, ok := s.stores[path]; ok {
		return store, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s", provider.ErrStoreNotFound, path)
	}
	return s.AddStore(path), nil
}

// DefaultStore implements provider.Session.
func (s *Session) DefaultStore() (provider.Store, error) {
	if s.defaultName == "" {
		return nil, provider.ErrNoDefaultStore
	}
	store, ok := s.stores[s.defaultName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrStoreNotFound, s.defaultName)
	}
	return store, nil
}

// DetachStore implements provider.Session.
func (s *Session) DetachStore(store provider.Store) error {
	s.DetachCalls++
	return nil
}

// Reclaim implements provider.Session.
func (s *Session) Reclaim() { s.ReclaimCalls++ }

// Close implements provider.Session.
func (s *Session) Close() error { return nil }

// Store is one in-memory store with a root folder and optional per-category
// defaults.
type Store struct {
	session  *Session
	name     string
	root     *Folder
	defaults map[types.Category]*Folder
	folders  map[string]*Folder
	nextID   int
}

func newStore(session *Session, name string) *Store {
	s := &Store{
		session:  session,
		name:     name,
		defaults: make(map[types.Category]*Folder),
		folders:  make(map[string]*Folder),
	}
	s.root = s.newFolder("root")
	return s
}

func (s *Store) newFolder(name string) *Folder {
	s.nextID++
	f := &Folder{
		store: s,
		id:    fmt.Sprintf("f%d", s.nextID),
		name:  name,
	}
	s.folders[f.id] = f
	return f
}

// ID implements provider.Store.
func (s *Store) ID() string { return s.name }

// Name implements provider.Store.
func (s *Store) Name() string { return s.name }

// Root implements provider.Store.
func (s *Store) Root() (provider.Container, error) { return s.root, nil }

// DefaultContainer implements provider.Store. Categories without a seeded
// default report ErrNoDefaultContainer, which exercises the engine's
// fallback path.
func (s *Store) DefaultContainer(c types.Category) (provider.Container, error) {
	if c == types.CategoryOther {
		c = types.CategoryMail
	}
	if f, ok := s.defaults[c]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", provider.ErrNoDefaultContainer, c)
}

// Close implements provider.Store.
func (s *Store) Close() error { return nil }

// RootFolder exposes the root for seeding.
func (s *Store) RootFolder() *Folder { return s.root }

// SeedDefault creates (or reuses) a child of root as the default container
// for a category.
func (s *Store) SeedDefault(c types.Category, name string) *Folder {
	f := s.root.AddChild(name)
	s.defaults[c] = f
	return f
}

// SetDefaultFolder marks an existing folder as a category default.
func (s *Store) SetDefaultFolder(c types.Category, f *Folder) {
	s.defaults[c] = f
}

// Folder is an in-memory container.
type Folder struct {
	store    *Store
	id       string
	name     string
	children []*Folder
	items    []*Item

	// Failure injection.
	FailItemCount  bool
	FailChildCount bool
	FailItemAt     map[int]bool // positions whose fetch fails

	// Instrumentation.
	ItemCountCalls int
	ItemAtCalls    int
}

// AddChild appends a child folder.
func (f *Folder) AddChild(name string) *Folder {
	child := f.store.newFolder(name)
	f.children = append(f.children, child)
	return child
}

// AddItem appends an item built from data.
func (f *Folder) AddItem(data types.ItemData) *Item {
	item := &Item{session: f.store.session, folder: f, data: data}
	f.items = append(f.items, item)
	return item
}

// Items returns the folder's current items.
func (f *Folder) Items() []*Item { return f.items }

// Key implements provider.Container.
func (f *Folder) Key() types.ContainerKey {
	return types.ContainerKey{StoreID: f.store.ID(), EntryID: f.id}
}

// Name implements provider.Container.
func (f *Folder) Name() string { return f.name }

// ItemCount implements provider.Container.
func (f *Folder) ItemCount() (int, error) {
	f.ItemCountCalls++
	if f.FailItemCount {
		return 0, fmt.Errorf("item count unavailable")
	}
	return len(f.items), nil
}

// ItemAt implements provider.Container.
func (f *Folder) ItemAt(pos int) (provider.Item, error) {
	f.ItemAtCalls++
	if f.FailItemAt[pos] {
		return nil, fmt.Errorf("item %d unavailable", pos)
	}
	if pos < 1 || pos > len(f.items) {
		return nil, fmt.Errorf("position %d out of range", pos)
	}
	return f.items[pos-1], nil
}

// ChildCount implements provider.Container.
func (f *Folder) ChildCount() (int, error) {
	if f.FailChildCount {
		return 0, fmt.Errorf("child count unavailable")
	}
	return len(f.children), nil
}

// ChildKeyAt implements provider.Container.
func (f *Folder) ChildKeyAt(pos int) (types.ContainerKey, error) {
	if pos < 1 || pos > len(f.children) {
		return types.ContainerKey{}, fmt.Errorf("position %d out of range", pos)
	}
	return f.children[pos-1].Key(), nil
}

// Resolve implements provider.Container.
func (f *Folder) Resolve(key types.ContainerKey) (provider.Container, error) {
	folder, ok := f.store.folders[key.EntryID]
	if !ok {
		return nil, fmt.Errorf("container %s not found", key.EntryID)
	}
	return folder, nil
}

// Item is an in-memory item.
type Item struct {
	session *Session
	folder  *Folder
	data    types.ItemData

	// FailMove makes MoveTo fail while still counting the attempt.
	FailMove bool
}

// TypeTag implements provider.Item.
func (it *Item) TypeTag() string { return it.data.TypeTag }

// Subject implements provider.Item.
func (it *Item) Subject() string { return it.data.Subject }

// Body implements provider.Item.
func (it *Item) Body() string { return it.data.Body }

// Start implements provider.Item.
func (it *Item) Start() time.Time { return it.data.Start }

// End implements provider.Item.
func (it *Item) End() time.Time { return it.data.End }

// Due implements provider.Item.
func (it *Item) Due() time.Time { return it.data.Due }

// SentOn implements provider.Item.
func (it *Item) SentOn() time.Time { return it.data.SentOn }

// Location implements provider.Item.
func (it *Item) Location() string { return it.data.Location }

// FullName implements provider.Item.
func (it *Item) FullName() string { return it.data.FullName }

// Company implements provider.Item.
func (it *Item) Company() string { return it.data.Company }

// Email implements provider.Item.
func (it *Item) Email(n int) string {
	switch n {
	case 1:
		return it.data.Email1
	case 2:
		return it.data.Email2
	case 3:
		return it.data.Email3
	}
	return ""
}

// SenderAddress implements provider.Item.
func (it *Item) SenderAddress() string { return it.data.SenderAddress }

// Size implements provider.Item.
func (it *Item) Size() int64 { return it.data.Size }

// PercentComplete implements provider.Item.
func (it *Item) PercentComplete() int { return it.data.PercentComplete }

// Description implements provider.Item.
func (it *Item) Description() string {
	if it.data.Subject != "" {
		return it.data.Subject
	}
	return it.data.TypeTag
}

// MoveTo implements provider.Item.
func (it *Item) MoveTo(dest provider.Container) error {
	it.session.MoveCalls++
	if it.FailMove {
		return fmt.Errorf("%w: injected failure", provider.ErrMoveFailed)
	}
	target, ok := dest.(*Folder)
	if !ok {
		return fmt.Errorf("%w: destination not a memstore folder", provider.ErrMoveFailed)
	}
	src := it.folder
	for i, candidate := range src.items {
		if candidate == it {
			src.items = append(src.items[:i], src.items[i+1:]...)
			break
		}
	}
	it.folder = target
	target.items = append(target.items, it)
	return nil
}
