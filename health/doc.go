// Package health exposes the portal's component health over HTTP probes.
//
// A Checker reports the state of one component: the tiered cache, its SQL
// backing store, or process memory. The Aggregator fans checks out in
// parallel and folds the results into a single Status.
//
//	agg := health.NewAggregator()
//	agg.Register("cache", health.NewCacheChecker(svc.Monitor()))
//	agg.Register("cache_store", health.NewStoreChecker("cache_store", sqlStore))
//	agg.Register("memory", health.NewMemoryChecker(health.MemoryCheckerConfig{}))
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//
// The handlers follow the usual probe conventions: /healthz is liveness,
// /readyz is readiness, /health returns the full JSON breakdown. A degraded
// cache (remote tier in cooldown) keeps readiness at 200 because reads are
// still served from the local tier.
package health
