// Package provider defines the message store boundary the merge engine runs
// against. A provider gives the engine a Session, which opens Stores, which
// expose Containers holding Items. Implementations live in the subpackages
// localstore (SQLite archive files), imapstore (live IMAP mailboxes) and
// memstore (in-memory, used by tests).
package provider

import (
	"errors"
	"time"

	"github.com/brandon/storemerge/pkg/types"
)

var (
	// ErrStoreNotFound is returned when a store is opened without create and
	// does not exist.
	ErrStoreNotFound = errors.New("store not found")

	// ErrNoDefaultStore is returned by DefaultStore when the session has no
	// default mailbox configured.
	ErrNoDefaultStore = errors.New("no default store configured")

	// ErrNoDefaultContainer is returned when a store has no store-scoped
	// default container for a category.
	ErrNoDefaultContainer = errors.New("no default container for category")

	// ErrMoveFailed wraps move rejections from the underlying store.
	ErrMoveFailed = errors.New("move failed")
)

// Session is one connection to a message store backend. All calls are
// blocking and none are safe for concurrent use; the engine drives a session
// from a single goroutine.
type Session interface {
	// OpenStore opens the store at path. When create is true a missing store
	// is created; otherwise ErrStoreNotFound is returned.
	OpenStore(path string, create bool) (Store, error)

	// DefaultStore opens the session's default mailbox store.
	DefaultStore() (Store, error)

	// DetachStore releases a store's handle. The store must not be used
	// afterwards.
	DetachStore(Store) error

	// Reclaim forces release of transient handles held by the backend.
	// Best-effort; failures are swallowed.
	Reclaim()

	Close() error
}

// Store is an opened message repository.
type Store interface {
	// ID is stable for the lifetime of the store, across re-opens within a
	// run.
	ID() string
	Name() string

	// Root returns the top of the store's container hierarchy.
	Root() (Container, error)

	// DefaultContainer resolves the store-scoped default container for a
	// category. Returns ErrNoDefaultContainer when the store has none; the
	// caller is expected to fall back to a store-wide default.
	DefaultContainer(c types.Category) (Container, error)

	Close() error
}

// Container is a folder-like node holding items and child containers.
// Positions are 1-based and reflect the container's current contents, so a
// position fetched before a removal may name a different element afterwards.
type Container interface {
	Key() types.ContainerKey
	Name() string

	ItemCount() (int, error)
	ItemAt(pos int) (Item, error)

	ChildCount() (int, error)
	ChildKeyAt(pos int) (types.ContainerKey, error)

	// Resolve re-opens a container from its durable key. The key may have
	// been captured from this container or any of its relatives within the
	// same store.
	Resolve(key types.ContainerKey) (Container, error)
}

// Item is one message-like record. Field getters never fail: a getter whose
// underlying read goes wrong returns its zero value, which keeps fingerprint
// computation total.
type Item interface {
	TypeTag() string

	Subject() string
	Body() string
	Start() time.Time
	End() time.Time
	Due() time.Time
	SentOn() time.Time
	Location() string
	FullName() string
	Company() string
	Email(n int) string
	SenderAddress() string
	Size() int64
	PercentComplete() int

	// Description is a best-effort label for log lines.
	Description() string

	// MoveTo moves the item into dest, removing it from its current
	// container. dest must belong to the same provider.
	MoveTo(dest Container) error
}
