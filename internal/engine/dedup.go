package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

// DedupIndex tracks, per destination container, the fingerprints already
// present there. The set for a container is built lazily on the first
// duplicate check against it by scanning its existing contents once, then
// grows incrementally as items are moved in. Nothing is persisted; every run
// rebuilds from what it finds.
type DedupIndex struct {
	logger *logrus.Logger
	sets   map[types.ContainerKey]map[string]struct{}
}

// NewDedupIndex creates an empty index.
func NewDedupIndex(logger *logrus.Logger) *DedupIndex {
	return &DedupIndex{
		logger: logger,
		sets:   make(map[types.ContainerKey]map[string]struct{}),
	}
}

// EnsureBuilt scans the container's existing items into the index, once per
// run. Items that cannot be fetched are skipped: a missed pre-existing
// fingerprint only risks an extra duplicate copy, never a wrongly-skipped
// move.
func (x *DedupIndex) EnsureBuilt(c provider.Container) {
	key := c.Key()
	if _, ok := x.sets[key]; ok {
		return
	}
	set := make(map[string]struct{})
	x.sets[key] = set

	count, err := c.ItemCount()
	if err != nil {
		x.logger.WithError(err).WithField("container", c.Name()).Warn("Failed to count items for dedup scan")
		return
	}
	skipped := 0
	for pos := 1; pos <= count; pos++ {
		item, err := c.ItemAt(pos)
		if err != nil {
			skipped++
			continue
		}
		fp := Fingerprint(item, Classify(item.TypeTag()))
		set[fp] = struct{}{}
	}
	x.logger.WithFields(logrus.Fields{
		"container":    c.Name(),
		"fingerprints": len(set),
		"skipped":      skipped,
	}).Debug("Built dedup index for container")
}

// Contains reports whether fp is already present in the container's set.
func (x *DedupIndex) Contains(key types.ContainerKey, fp string) bool {
	set, ok := x.sets[key]
	if !ok {
		return false
	}
	_, ok = set[fp]
	return ok
}

// Insert records fp for the container so later items in the same run see it
// as present.
func (x *DedupIndex) Insert(key types.ContainerKey, fp string) {
	set, ok := x.sets[key]
	if !ok {
		set = make(map[string]struct{})
		x.sets[key] = set
	}
	set[fp] = struct{}{}
}
