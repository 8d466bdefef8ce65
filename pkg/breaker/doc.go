// Package breaker implements the circuit breaker that gates webhook event
// processing.
//
// The breaker protects the backing stores and the payment provider from
// being hammered by a burst of redelivered events during an outage: after a
// run of consecutive failures it opens and fails fast, then probes recovery
// with a limited number of trial calls before closing again.
//
//	cb := breaker.New(breaker.Config{})
//
//	err := cb.Do(ctx, func(ctx context.Context) error {
//		_, err := processor.Process(ctx, event)
//		return err
//	})
//	if errors.Is(err, breaker.ErrOpen) {
//		// tell the provider to redeliver later
//	}
package breaker
