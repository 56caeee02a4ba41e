package resolver

import (
	"log/slog"

	"github.com/roach88/runcache/internal/aggregate"
	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/locate"
	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/runfile"
)

// Env is the context shared by every resolver of one reduction pipeline.
type Env struct {
	Registry registry.Registry
	Locator  locate.Locator
	Loader   runfile.Loader
	Applier  calib.Applier

	// Locks serializes eviction and rename per name. Created on first use
	// when nil.
	Locks *registry.NameLocks

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Instrument is the default instrument short name.
	Instrument string

	// Extension is the default run file extension.
	Extension string

	// MonitorMode selects where monitor spectra go on load.
	MonitorMode runfile.MonitorMode
}

// Option configures a RunResolver.
type Option func(*RunResolver)

// WithAggregator replaces the default run-list aggregator.
func WithAggregator(agg aggregate.Aggregator) Option {
	return func(r *RunResolver) {
		r.agg = agg
	}
}

// WithCalibration sets the calibration source applied on materialization.
func WithCalibration(src calib.Source) Option {
	return func(r *RunResolver) {
		r.calSource = src
	}
}

// WithEmbeddedCalibration prefers the calibration reference embedded in the
// workspace logs over the configured source.
func WithEmbeddedCalibration(prefer bool) Option {
	return func(r *RunResolver) {
		r.preferEmbedded = prefer
	}
}
