// Package pg connects to PostgreSQL through pgx/v5 and applies goose
// migrations from either a directory or an embedded filesystem.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.MigrateFS(ctx, pool, accounts.Migrations, cfg, log); err != nil {
//		return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify driver errors so
// repositories can map them to their own sentinels.
package pg
