package localstore

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

// specialTokens maps categories to the folder rows seeded at store
// creation. Mail and Other both route to the inbox.
var specialTokens = map[types.Category]string{
	types.CategoryAppointment: "calendar",
	types.CategoryContact:     "contacts",
	types.CategoryTask:        "tasks",
	types.CategoryNote:        "notes",
	types.CategoryJournal:     "journal",
	types.CategoryMail:        "inbox",
	types.CategoryOther:       "inbox",
}

// defaultFolderNames are the display names of the seeded containers, keyed
// by special token.
var defaultFolderNames = map[string]string{
	"inbox":    "Inbox",
	"calendar": "Calendar",
	"contacts": "Contacts",
	"tasks":    "Tasks",
	"notes":    "Notes",
	"journal":  "Journal",
}

// Store is one open archive file.
type Store struct {
	session *Session
	db      *sql.DB
	path    string
	id      string
}

// ensureSeeded creates the meta row, the root folder and the default
// category folders on first open of a fresh file.
func (s *Store) ensureSeeded() error {
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'store_id'").Scan(&s.id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to read store id: %w", err)
	}

	s.id = newEntryID()
	if _, err := s.db.Exec("INSERT INTO meta (key, value) VALUES ('store_id', ?)", s.id); err != nil {
		return fmt.Errorf("failed to write store id: %w", err)
	}

	rootID := newEntryID()
	if _, err := s.db.Exec("INSERT INTO folders (id, parent_id, name, special) VALUES (?, NULL, ?, 'root')", rootID, s.Name()); err != nil {
		return fmt.Errorf("failed to create root folder: %w", err)
	}
	for special, name := range defaultFolderNames {
		if _, err := s.db.Exec("INSERT INTO folders (id, parent_id, name, special) VALUES (?, ?, ?, ?)",
			newEntryID(), rootID, name, special); err != nil {
			return fmt.Errorf("failed to seed %s folder: %w", special, err)
		}
	}
	return nil
}

// ID implements provider.Store.
func (s *Store) ID() string { return s.id }

// Name implements provider.Store.
func (s *Store) Name() string { return filepath.Base(s.path) }

// Root implements provider.Store.
func (s *Store) Root() (provider.Container, error) {
	return s.folderBySpecial("root")
}

// DefaultContainer implements provider.Store.
func (s *Store) DefaultContainer(c types.Category) (provider.Container, error) {
	special, ok := specialTokens[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrNoDefaultContainer, c)
	}
	return s.folderBySpecial(special)
}

func (s *Store) folderBySpecial(special string) (provider.Container, error) {
	var id, name string
	err := s.db.QueryRow("SELECT id, name FROM folders WHERE special = ?", special).Scan(&id, &name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no %s folder", provider.ErrNoDefaultContainer, special)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s folder: %w", special, err)
	}
	return &Container{store: s, folderID: id, name: name}, nil
}

// Close implements provider.Store.
func (s *Store) Close() error {
	delete(s.session.open, s.path)
	return s.db.Close()
}

// CreateFolder adds a child folder under parent. Part of the store's
// authoring surface; the merge engine itself never creates folders.
func (s *Store) CreateFolder(parent provider.Container, name string) (provider.Container, error) {
	p, ok := parent.(*Container)
	if !ok || p.store != s {
		return nil, fmt.Errorf("parent does not belong to this store")
	}
	id := newEntryID()
	if _, err := s.db.Exec("INSERT INTO folders (id, parent_id, name) VALUES (?, ?, ?)", id, p.folderID, name); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return &Container{store: s, folderID: id, name: name}, nil
}

// AppendItem writes a new item into c.
func (s *Store) AppendItem(c provider.Container, data types.ItemData) error {
	target, ok := c.(*Container)
	if !ok || target.store != s {
		return fmt.Errorf("container does not belong to this store")
	}
	return insertItem(s.db, target.folderID, newEntryID(), data)
}

func insertItem(db *sql.DB, folderID, id string, data types.ItemData) error {
	_, err := db.Exec(`
		INSERT INTO items (id, folder_id, type_tag, subject, body, start_at, end_at, due_at, sent_at,
			location, full_name, company, email1, email2, email3, sender, size, percent_complete)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, folderID, data.TypeTag, data.Subject, data.Body,
		unixOrZero(data.Start), unixOrZero(data.End), unixOrZero(data.Due), unixOrZero(data.SentOn),
		data.Location, data.FullName, data.Company,
		data.Email1, data.Email2, data.Email3,
		data.SenderAddress, data.Size, data.PercentComplete,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// Container is a folder within a store.
type Container struct {
	store    *Store
	folderID string
	name     string
}

// Key implements provider.Container.
func (c *Container) Key() types.ContainerKey {
	return types.ContainerKey{StoreID: c.store.id, EntryID: c.folderID}
}

// Name implements provider.Container.
func (c *Container) Name() string { return c.name }

// ItemCount implements provider.Container.
func (c *Container) ItemCount() (int, error) {
	var count int
	err := c.store.db.QueryRow("SELECT COUNT(*) FROM items WHERE folder_id = ?", c.folderID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// ItemAt implements provider.Container. Positions follow insertion order
// (rowid), 1-based; the full field set is snapshotted at fetch time so the
// item's getters never touch the database again.
func (c *Container) ItemAt(pos int) (provider.Item, error) {
	row := c.store.db.QueryRow(`
		SELECT id, type_tag, subject, body, start_at, end_at, due_at, sent_at,
			location, full_name, company, email1, email2, email3, sender, size, percent_complete
		FROM items WHERE folder_id = ?
		ORDER BY rowid LIMIT 1 OFFSET ?
	`, c.folderID, pos-1)

	item := &Item{store: c.store, folderID: c.folderID}
	var start, end, due, sent int64
	err := row.Scan(
		&item.id, &item.data.TypeTag, &item.data.Subject, &item.data.Body,
		&start, &end, &due, &sent,
		&item.data.Location, &item.data.FullName, &item.data.Company,
		&item.data.Email1, &item.data.Email2, &item.data.Email3,
		&item.data.SenderAddress, &item.data.Size, &item.data.PercentComplete,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item at %d: %w", pos, err)
	}
	item.data.Start = timeOrZero(start)
	item.data.End = timeOrZero(end)
	item.data.Due = timeOrZero(due)
	item.data.SentOn = timeOrZero(sent)
	return item, nil
}

// ChildCount implements provider.Container.
func (c *Container) ChildCount() (int, error) {
	var count int
	err := c.store.db.QueryRow("SELECT COUNT(*) FROM folders WHERE parent_id = ?", c.folderID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count child folders: %w", err)
	}
	return count, nil
}

// ChildKeyAt implements provider.Container.
func (c *Container) ChildKeyAt(pos int) (types.ContainerKey, error) {
	var id string
	err := c.store.db.QueryRow(
		"SELECT id FROM folders WHERE parent_id = ? ORDER BY rowid LIMIT 1 OFFSET ?",
		c.folderID, pos-1,
	).Scan(&id)
	if err != nil {
		return types.ContainerKey{}, fmt.Errorf("failed to fetch child key at %d: %w", pos, err)
	}
	return types.ContainerKey{StoreID: c.store.id, EntryID: id}, nil
}

// Resolve implements provider.Container.
func (c *Container) Resolve(key types.ContainerKey) (provider.Container, error) {
	var name string
	err := c.store.db.QueryRow("SELECT name FROM folders WHERE id = ?", key.EntryID).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("container %s not found", key.EntryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve container: %w", err)
	}
	return &Container{store: c.store, folderID: key.EntryID, name: name}, nil
}

// Item is one fetched item with its fields snapshotted.
type Item struct {
	store    *Store
	folderID string
	id       string
	data     types.ItemData
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

// MoveTo implements provider.Item. Within one store the move is a single
// folder_id update; across stores the snapshotted row is inserted into the
// destination file before the source row is deleted, so a failure between
// the two leaves a duplicate rather than a lost item.
func (it *Item) MoveTo(dest provider.Container) error {
	target, ok := dest.(*Container)
	if !ok {
		return fmt.Errorf("%w: destination not a local store container", provider.ErrMoveFailed)
	}

	if target.store == it.store {
		res, err := it.store.db.Exec("UPDATE items SET folder_id = ? WHERE id = ?", target.folderID, it.id)
		if err != nil {
			return fmt.Errorf("%w: %v", provider.ErrMoveFailed, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: item no longer exists", provider.ErrMoveFailed)
		}
		return nil
	}

	if err := insertItem(target.store.db, target.folderID, newEntryID(), it.data); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrMoveFailed, err)
	}
	if _, err := it.store.db.Exec("DELETE FROM items WHERE id = ?", it.id); err != nil {
		return fmt.Errorf("%w: copied but failed to remove source: %v", provider.ErrMoveFailed, err)
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
