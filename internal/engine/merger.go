// Package engine implements the merge core: traversal of source store
// trees, classification and routing of items, duplicate suppression, the
// move transaction itself, and the liveness machinery (progress signaling,
// handle reclamation, memory telemetry) that keeps multi-hour runs healthy.
package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/storemerge/internal/config"
	"github.com/brandon/storemerge/internal/logging"
	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

// ProgressToken is the literal that prefixes each progress line on stdout.
// The control surface parses these lines, so the token is part of the wire
// contract.
const ProgressToken = "MOVED"

// Outcome is the per-item result of processing.
type Outcome int

const (
	OutcomeMoved Outcome = iota
	OutcomeSkippedDuplicate
	OutcomeFailed
)

// Summary holds the run's counters. Mutated only by the merger's single
// goroutine, read at run end.
type Summary struct {
	Moved             int
	SkippedDuplicates int
	Failed            int
	PerCategoryMoved  [types.NumCategories]int
}

// Fields renders the summary for structured logging.
func (s *Summary) Fields() logrus.Fields {
	fields := logrus.Fields{
		"moved":   s.Moved,
		"skipped": s.SkippedDuplicates,
		"failed":  s.Failed,
	}
	for cat := types.Category(0); cat < types.NumCategories; cat++ {
		fields["moved_"+cat.String()] = s.PerCategoryMoved[cat]
	}
	return fields
}

// Merger runs one merge: it opens the destination, walks each source store,
// and routes every item it finds. All state lives on the Merger value; no
// process-wide state survives past a run.
type Merger struct {
	session  provider.Session
	opts     config.Options
	logger   *logrus.Logger
	progress io.Writer

	accessor *Accessor
	dedup    *DedupIndex
	governor *Governor
	summary  Summary

	dest provider.Store
}

// NewMerger wires a merger over the given session. Progress lines are
// written to progress (stdout in production, a buffer in tests).
func NewMerger(session provider.Session, opts config.Options, logger *logrus.Logger, progress io.Writer) *Merger {
	return &Merger{
		session:  session,
		opts:     opts,
		logger:   logger,
		progress: progress,
		accessor: NewAccessor(session, logger),
		dedup:    NewDedupIndex(logger),
		governor: NewGovernor(session, logger, opts.ReclaimEvery, opts.Monitor, opts.MonitorEvery),
	}
}

// Run executes the merge. The returned error is non-nil only for fatal
// conditions: the destination cannot be opened. Individual item failures and
// unopenable sources are logged and absorbed.
func (m *Merger) Run() (*Summary, error) {
	started := time.Now()
	defer m.accessor.CloseAll()

	dest, err := m.openDestination()
	if err != nil {
		return nil, err
	}
	m.dest = dest
	m.logger.WithField("store", dest.Name()).Info("Destination store ready")

	for _, src := range m.opts.Sources {
		m.mergeSource(src)
	}

	logging.Perf(m.logger).WithField("duration", time.Since(started).String()).Info("Merge complete")
	m.logger.WithFields(m.summary.Fields()).Info("Run summary")
	return &m.summary, nil
}

func (m *Merger) openDestination() (provider.Store, error) {
	if m.opts.UseDefaultDest {
		return m.accessor.DefaultStore()
	}
	return m.accessor.OpenStore(m.opts.DestPath, true)
}

// mergeSource merges one source store. Failures at this granularity abandon
// the source, never the run.
func (m *Merger) mergeSource(path string) {
	before := m.summary

	store, err := m.accessor.OpenStore(path, false)
	if err != nil {
		m.logger.WithError(err).WithField("source", path).Error("Failed to open source store, skipping")
		return
	}

	start, err := m.startContainer(store)
	if err != nil {
		m.logger.WithError(err).WithField("source", path).Error("Failed to resolve start container, skipping source")
		if m.opts.DetachSources {
			m.accessor.Detach(store)
		}
		return
	}

	m.logger.WithFields(logrus.Fields{
		"source": store.Name(),
		"scope":  string(m.opts.Scope),
	}).Info("Merging source store")

	traverser := NewTraverser(m.logger, func(item provider.Item) {
		m.ProcessItem(item)
	})
	traverser.Walk(start)

	m.logger.WithFields(logrus.Fields{
		"source":  store.Name(),
		"moved":   m.summary.Moved - before.Moved,
		"skipped": m.summary.SkippedDuplicates - before.SkippedDuplicates,
		"failed":  m.summary.Failed - before.Failed,
	}).Info("Source store complete")

	if m.opts.DetachSources {
		m.accessor.Detach(store)
	}
}

// startContainer picks where traversal begins for a source: the inbox
// container under inbox scope, the store root otherwise.
func (m *Merger) startContainer(store provider.Store) (provider.Container, error) {
	if m.opts.Scope == config.ScopeInbox {
		return store.DefaultContainer(types.CategoryMail)
	}
	return store.Root()
}

// ProcessItem routes a single item: classify, resolve destination, check
// for a duplicate, then move (or, in a dry run, report the move it would
// have made). Every step is fault-tolerant; nothing here ever aborts the
// run.
func (m *Merger) ProcessItem(item provider.Item) Outcome {
	cat := Classify(item.TypeTag())

	dest, fellBack, err := m.accessor.Destination(m.dest, cat)
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"item":     item.Description(),
			"category": cat.String(),
		}).Warn("Failed to resolve destination container, leaving item in place")
		m.summary.Failed++
		return OutcomeFailed
	}

	// When resolution had to fall back the duplicate check is skipped and
	// the move proceeds unconditionally. Tightening this would change move
	// counts between runs, so the fail-open behavior is kept deliberately.
	var fp string
	checkDup := m.opts.SkipDuplicates && !fellBack
	if checkDup {
		fp = Fingerprint(item, cat)
		m.dedup.EnsureBuilt(dest)
		if m.dedup.Contains(dest.Key(), fp) {
			m.summary.SkippedDuplicates++
			m.logger.WithFields(logrus.Fields{
				"item":        item.Description(),
				"destination": dest.Name(),
			}).Debug("Skipped duplicate")
			return OutcomeSkippedDuplicate
		}
	}

	if m.opts.DryRun {
		m.logger.WithFields(logrus.Fields{
			"item":        item.Description(),
			"destination": dest.Name(),
			"category":    cat.String(),
		}).Info("Would move item")
	} else if err := item.MoveTo(dest); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"item":        item.Description(),
			"destination": dest.Name(),
		}).Warn("Failed to move item, leaving it in place")
		m.summary.Failed++
		return OutcomeFailed
	}

	m.summary.Moved++
	m.summary.PerCategoryMoved[cat]++
	if checkDup {
		m.dedup.Insert(dest.Key(), fp)
	}

	if m.opts.ProgressEvery > 0 && m.summary.Moved%m.opts.ProgressEvery == 0 {
		// Progress emission is telemetry; a broken pipe must not kill the run.
		_, _ = fmt.Fprintf(m.progress, "%s %d\n", ProgressToken, m.summary.Moved)
	}
	m.governor.Check(m.summary.Moved)
	return OutcomeMoved
}
