// Package redis provides the redis connection used by the distributed
// subject lock manager.
//
// Connect parses a redis:// URL, retries until the server is reachable and
// returns a ready *redis.Client. Healthcheck exposes a probe function for
// readiness endpoints.
//
// Usage:
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
