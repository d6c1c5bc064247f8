// Package metrics provides an observability framework for buildmon session metrics.
//
// # Design Philosophy
//
// This package implements the Null Object pattern to enable metrics collection
// without requiring explicit nil checks throughout the codebase. By default,
// all components use NoopRecorder which implements the Recorder interface with
// no-op methods that inline to nothing at compile time.
//
// # Architecture
//
// The metrics system has three components:
//
//  1. Recorder interface - Defines all metrics operations
//  2. NoopRecorder - Default implementation that does nothing (zero overhead)
//  3. PrometheusRecorder - Prometheus adapter (activated when metrics are enabled)
//
// # Usage Pattern
//
// Components receive a Recorder through dependency injection and fall back
// to the noop when none is supplied:
//
//	sup := supervisor.New(cfg, supervisor.Components{
//	    Recorder: nil, // becomes metrics.NoopRecorder{}
//	})
//
// # Activation
//
// When the metrics endpoint is enabled in config, the daemon builds a real
// recorder against its registry and the same wiring lights up:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	sup := supervisor.New(cfg, supervisor.Components{Recorder: recorder})
//
// This approach allows:
//   - Zero overhead when metrics are disabled (noop methods inline away)
//   - Metrics activation without code changes (just swap implementation)
//   - Clean testing (inject mock recorder for verification)
package metrics
