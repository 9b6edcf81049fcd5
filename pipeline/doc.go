// Package pipeline dispatches portal requests through a fixed chain of
// cross-cutting behaviors: logging/performance observes the whole execution,
// validation rejects malformed requests before any other work, authorization
// checks the caller's capabilities, and caching serves read kinds from the
// cache service and triggers invalidations after successful writes.
//
// The chain is assembled explicitly at construction time from static request
// descriptors; there is no runtime registry scanning and no container.
package pipeline
