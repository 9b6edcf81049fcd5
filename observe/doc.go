// Package observe provides observability primitives for request dispatch.
//
// It is a pure instrumentation library: no dispatch, no transport, no I/O
// beyond exporter setup. Consumers wire the observer into the pipeline's
// logging behavior or server middleware.
package observe
