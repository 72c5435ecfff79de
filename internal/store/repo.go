package store

import (
	"context"
	"sort"

	"cragdb/api/internal/cache"
	"cragdb/api/internal/logging"
	"cragdb/api/internal/query"
)

// Repo holds every statement of the catalogue. It runs either on the pool or
// on a transaction, see PostgresStore.InTx.
type Repo struct {
	q      DBTX
	cache  cache.Cache
	locale string
	// tables written inside a transaction, nil outside one
	dirty map[string]struct{}
}

// wrote records that tables changed. Outside a transaction their cache
// entries are dropped right away.
func (r *Repo) wrote(ctx context.Context, tables ...string) {
	if r.dirty != nil {
		for _, table := range tables {
			r.dirty[table] = struct{}{}
		}
		return
	}
	if err := r.cache.Invalidate(ctx, tables...); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("tables", tables).Warn("query cache invalidation failed")
	}
}

func (r *Repo) dirtyTables() []string {
	tables := make([]string, 0, len(r.dirty))
	for table := range r.dirty {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// cached fills dest from the cache entry of q, or runs load and stores dest.
// Cache failures are logged and never fail the read.
func (r *Repo) cached(ctx context.Context, q query.Query, dest any, load func() error) error {
	key := q.Fingerprint()
	found, err := r.cache.Get(ctx, key, dest)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("query cache read failed")
	}
	if found {
		return nil
	}
	if err := load(); err != nil {
		return err
	}
	if err := r.cache.Set(ctx, key, q.Tables, dest); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("query cache write failed")
	}
	return nil
}
