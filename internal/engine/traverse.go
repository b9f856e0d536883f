package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

// ItemVisitor is called once for every item the traversal reaches. Visitors
// may remove the visited item from its container (that is the whole point);
// the traversal order is chosen so removal of the current item never shifts
// the positions still to be visited.
type ItemVisitor func(item provider.Item)

// Traverser walks a container tree depth-first, items before children.
type Traverser struct {
	logger *logrus.Logger
	visit  ItemVisitor
}

// NewTraverser creates a traverser that feeds every reached item to visit.
func NewTraverser(logger *logrus.Logger, visit ItemVisitor) *Traverser {
	return &Traverser{logger: logger, visit: visit}
}

// Walk visits every item in c and then recurses into every child container.
//
// Items are iterated by descending position, re-fetching each item by
// position just before the visit. Forward iteration would skip elements as
// moves compact the container underneath it; descending iteration is stable
// under removal of the currently-visited element.
//
// Child containers are captured as durable keys before any recursion and
// each child is re-resolved from its key when its turn comes. The traversal
// therefore never holds live handles to a child and all of its siblings at
// once, keeping the number of concurrently-live container handles bounded by
// tree depth rather than fan-out.
//
// A container whose item or child count cannot be read is treated as empty
// on that axis.
func (t *Traverser) Walk(c provider.Container) {
	count, err := c.ItemCount()
	if err != nil {
		t.logger.WithError(err).WithField("container", c.Name()).Warn("Failed to read item count, treating container as empty")
		count = 0
	}
	for pos := count; pos >= 1; pos-- {
		item, err := c.ItemAt(pos)
		if err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"container": c.Name(),
				"position":  pos,
			}).Debug("Failed to fetch item")
			continue
		}
		t.visit(item)
	}

	childCount, err := c.ChildCount()
	if err != nil {
		t.logger.WithError(err).WithField("container", c.Name()).Warn("Failed to read child count, not recursing")
		return
	}
	keys := make([]types.ContainerKey, 0, childCount)
	for pos := 1; pos <= childCount; pos++ {
		key, err := c.ChildKeyAt(pos)
		if err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"container": c.Name(),
				"position":  pos,
			}).Warn("Failed to read child key")
			continue
		}
		keys = append(keys, key)
	}
	for _, key := range keys {
		child, err := c.Resolve(key)
		if err != nil {
			t.logger.WithError(err).WithField("entry_id", key.EntryID).Warn("Failed to resolve child container, skipping subtree")
			continue
		}
		t.Walk(child)
	}
}
