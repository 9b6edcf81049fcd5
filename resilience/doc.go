// Package resilience guards the portal's unreliable edges.
//
// The tiered cache wraps every remote-tier call in a circuit breaker so a
// failing backing store trips into cooldown instead of slowing every
// request, and the admin endpoints sit behind a token-bucket rate limiter.
// The patterns compose through Executor:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	        MaxFailures:  5,
//	        ResetTimeout: 30 * time.Second,
//	    })),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(2*time.Second),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return store.Set(ctx, key, value, ttl)
//	})
package resilience
