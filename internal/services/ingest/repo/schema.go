package repo

import (
	"context"
	_ "embed"

	"rangeload/internal/modkit/repokit"
	perr "rangeload/internal/platform/errors"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the ledger, queue and lease tables when missing
func Migrate(ctx context.Context, q repokit.Queryer) error {
	if _, err := q.Exec(ctx, schemaSQL); err != nil {
		return perr.FromPostgres(err, "migrate ingest schema")
	}
	return nil
}
