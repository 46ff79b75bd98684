// Package runner executes one filtered test run and reports its failure
// count. The coordinator drives it through the TestRunner contract; the
// default implementation shells out to go test.
package runner

import (
	"context"
	"io"

	"github.com/ethereum-optimism/infra/op-testd/registry"
)

// ReporterKind selects how run output is reported.
type ReporterKind string

const (
	// ReporterSpec streams human-readable output line by line.
	ReporterSpec ReporterKind = "spec"
	// ReporterJSON accumulates a single machine-readable payload emitted
	// at run end. Implies no ANSI color codes.
	ReporterJSON ReporterKind = "json"
)

// Valid reports whether k names a known reporter.
func (k ReporterKind) Valid() bool {
	return k == ReporterSpec || k == ReporterJSON
}

// TestRunner is the execution engine contract the coordinator consumes.
// Configuration calls apply to the next Run only; Run is synchronous and
// returns the run's failure count. A non-nil error means the engine
// malfunctioned before producing a count.
type TestRunner interface {
	SetFilter(f *registry.Filter)
	SetInvert(invert bool)
	SetBail(bail bool)
	SelectReporter(kind ReporterKind, output io.Writer)
	ResetTransientState()
	Run(ctx context.Context) (int, error)
}
