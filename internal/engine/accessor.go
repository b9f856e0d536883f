package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

// containerCacheKey keys the default-container cache by (store-id, category)
// rather than by a live handle, so cached entries survive reclamation
// events.
type containerCacheKey struct {
	storeID  string
	category types.Category
}

// Accessor opens stores through the session, keeps the run's live-store list
// for end-of-run cleanup, and caches each store's default containers for the
// lifetime of the run.
// containerCacheEntry remembers whether resolution had to fall back, so the
// fail-open duplicate-check skip applies consistently across the run.
type containerCacheEntry struct {
	container provider.Container
	fellBack  bool
}

type Accessor struct {
	session    provider.Session
	logger     *logrus.Logger
	containers map[containerCacheKey]containerCacheEntry
	open       []provider.Store
}

// NewAccessor creates an accessor over the given session.
func NewAccessor(session provider.Session, logger *logrus.Logger) *Accessor {
	return &Accessor{
		session:    session,
		logger:     logger,
		containers: make(map[containerCacheKey]containerCacheEntry),
	}
}

// OpenStore opens (or with create, creates) a store and registers it in the
// live-store list.
func (a *Accessor) OpenStore(path string, create bool) (provider.Store, error) {
	store, err := a.session.OpenStore(path, create)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %q: %w", path, err)
	}
	a.open = append(a.open, store)
	a.logger.WithFields(logrus.Fields{
		"store": store.Name(),
		"id":    store.ID(),
	}).Debug("Opened store")
	return store, nil
}

// DefaultStore opens the session's default mailbox store and registers it.
func (a *Accessor) DefaultStore() (provider.Store, error) {
	store, err := a.session.DefaultStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open default store: %w", err)
	}
	a.open = append(a.open, store)
	return store, nil
}

// Destination resolves the default container of a store for a category,
// cached for the remainder of the run. When the store has no store-scoped
// default for the category, resolution falls back to the store's mail
// container; fellBack reports that the fallback was taken, which the
// orchestrator uses to skip the duplicate check for such items.
func (a *Accessor) Destination(store provider.Store, cat types.Category) (c provider.Container, fellBack bool, err error) {
	key := containerCacheKey{storeID: store.ID(), category: cat}
	if cached, ok := a.containers[key]; ok {
		return cached.container, cached.fellBack, nil
	}

	c, err = store.DefaultContainer(cat)
	if err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"store":    store.Name(),
			"category": cat.String(),
		}).Debug("No store-scoped default container, falling back to mail container")
		c, err = store.DefaultContainer(types.CategoryMail)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve destination container for %s: %w", cat, err)
		}
		fellBack = true
	}
	a.containers[key] = containerCacheEntry{container: c, fellBack: fellBack}
	return c, fellBack, nil
}

// Detach releases one store and drops it from the live-store list.
func (a *Accessor) Detach(store provider.Store) {
	if err := a.session.DetachStore(store); err != nil {
		a.logger.WithError(err).WithField("store", store.Name()).Warn("Failed to detach store")
	}
	for i, s := range a.open {
		if s == store {
			a.open = append(a.open[:i], a.open[i+1:]...)
			break
		}
	}
}

// CloseAll releases every store still registered. Called on every exit path
// of a run.
func (a *Accessor) CloseAll() {
	for _, s := range a.open {
		if err := s.Close(); err != nil {
			a.logger.WithError(err).WithField("store", s.Name()).Warn("Failed to close store")
		}
	}
	a.open = nil
}
