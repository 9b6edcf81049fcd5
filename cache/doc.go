// Package cache provides the multi-tier caching and invalidation engine.
//
// It provides a Store interface with in-memory (LRU), SQL-backed, and tiered
// implementations, an invalidation index supporting tag, prefix, and
// dependency-based bulk removal, a single-flight population service, and a
// monitor exposing cache statistics.
package cache
