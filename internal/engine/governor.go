package engine

import (
	"runtime"
	"runtime/debug"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/brandon/storemerge/internal/logging"
	"github.com/brandon/storemerge/internal/provider"
)

// Governor bounds resource growth over long runs. The backing store
// accumulates transient proxy handles under sustained traffic; every
// reclaimEvery moved items the governor asks the session to drop them and
// returns freed memory to the OS. Independently, every monitorEvery moved
// items it samples process memory and emits a PERF log line.
type Governor struct {
	session      provider.Session
	logger       *logrus.Logger
	reclaimEvery int
	monitor      bool
	monitorEvery int
}

// NewGovernor creates a governor. A cadence of 0 disables the corresponding
// behavior.
func NewGovernor(session provider.Session, logger *logrus.Logger, reclaimEvery int, monitor bool, monitorEvery int) *Governor {
	return &Governor{
		session:      session,
		logger:       logger,
		reclaimEvery: reclaimEvery,
		monitor:      monitor,
		monitorEvery: monitorEvery,
	}
}

// Check runs the reclamation and monitoring cadences against the global
// moved counter. Called by the orchestrator after every successful move.
func (g *Governor) Check(moved int) {
	if g.reclaimEvery > 0 && moved%g.reclaimEvery == 0 {
		g.session.Reclaim()
		runtime.GC()
		debug.FreeOSMemory()
		g.logger.WithField("moved", moved).Debug("Reclaimed transient handles")
	}
	if g.monitor && g.monitorEvery > 0 && moved%g.monitorEvery == 0 {
		g.report(moved)
	}
}

// report samples process memory. Telemetry only; nothing here can fail the
// run.
func (g *Governor) report(moved int) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	logging.Perf(g.logger).WithFields(logrus.Fields{
		"moved":        moved,
		"heap_alloc":   humanize.Bytes(ms.HeapAlloc),
		"sys":          humanize.Bytes(ms.Sys),
		"heap_objects": ms.HeapObjects,
		"num_gc":       ms.NumGC,
	}).Info("Memory sample")
}
