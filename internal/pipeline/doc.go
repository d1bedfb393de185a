// Package pipeline is the composition root for the analytics core: it
// wires the Biomechanics Analyzer, Performance Analyzer and Heat-Map
// Generator into a per-stream runtime with windowing and a per-cycle
// latency budget.
//
// This package imports from internal/biomech; biomech never imports
// pipeline. Callers (ingestion handlers, replay tooling) construct one
// Runtime per sensor stream.
package pipeline
