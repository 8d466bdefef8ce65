// Package pg provides the Postgres connection pool and schema migration
// runner used by the relational subscription record driver.
//
// Deployments that already run Postgres can keep the subscription record
// there instead of mongo; both drivers sit behind the same store contract in
// svc/subscription. Migrations live in svc/subscription/migrations and are
// applied with goose:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//		return err
//	}
package pg
