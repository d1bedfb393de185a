// Package biomech implements the real-time analytics core for wearable
// biomechanical sensors: windowed signal conditioning, muscle-activity /
// kinematics / load-distribution computation, anomaly detection against
// an athlete baseline, and spatial heat-map interpolation.
//
// The package is the composition leaf: it owns no transport, storage or
// UI surface. Frames arrive from an external ingestion layer, calibration
// from an external configuration service, and baselines from an external
// historical store; all three are passed in as immutable arguments.
//
// Analyzers are pure per call and safe for concurrent use across
// independent sensor streams. The only cross-call state in the package is
// the HeatMapGenerator's previous grid, used for real-time transition
// smoothing and cleared by Reset.
package biomech
