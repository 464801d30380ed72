package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/oagw/gateway/domain/route"
	"github.com/oagw/gateway/domain/upstream"
	"github.com/oagw/gateway/ports"
)

// Repository implements ports.Repository using SQLite, following the
// teacher's per-table store shape (adapters/sqlite/upstreamstore.go and
// routestore.go) generalized onto the tenant-scoped, JSON-blob-columned
// Upstream/Route schema of §3.
type Repository struct {
	db *DB
}

// NewRepository creates a SQLite-backed Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// --- Upstreams ---------------------------------------------------------

func (r *Repository) CreateUpstream(ctx context.Context, u upstream.Upstream) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	serverJSON, err := marshalJSON(u.Server)
	if err != nil {
		return err
	}
	authJSON, err := marshalJSON(u.Auth)
	if err != nil {
		return err
	}
	headersJSON, err := marshalJSON(u.Headers)
	if err != nil {
		return err
	}
	rateLimitJSON, err := marshalJSON(u.RateLimit)
	if err != nil {
		return err
	}
	pluginsJSON, err := marshalJSON(u.Plugins)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalJSON(u.Tags)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO upstreams (
			id, tenant_id, alias, server, protocol, enabled,
			auth, headers, rate_limit, plugins, tags, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID, u.TenantID, u.Alias, serverJSON, u.Protocol, boolToInt(u.Enabled),
		authJSON, headersJSON, rateLimitJSON, pluginsJSON, tagsJSON, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

const upstreamColumns = `id, tenant_id, alias, server, protocol, enabled,
	auth, headers, rate_limit, plugins, tags, created_at, updated_at`

func (r *Repository) GetUpstream(ctx context.Context, tenantID, id string) (upstream.Upstream, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+upstreamColumns+` FROM upstreams WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return scanUpstream(row)
}

func (r *Repository) GetUpstreamByAlias(ctx context.Context, tenantID, alias string) (upstream.Upstream, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+upstreamColumns+` FROM upstreams WHERE tenant_id = ? AND alias = ?`, tenantID, alias)
	return scanUpstream(row)
}

func (r *Repository) ListUpstreams(ctx context.Context, tenantID string, opts ports.ListOptions) ([]upstream.Upstream, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upstreams WHERE tenant_id = ?`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+upstreamColumns+` FROM upstreams WHERE tenant_id = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`,
		tenantID, opts.Top, opts.Skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []upstream.Upstream
	for rows.Next() {
		u, err := scanUpstreamRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *Repository) UpdateUpstream(ctx context.Context, u upstream.Upstream) error {
	u.UpdatedAt = time.Now().UTC()

	serverJSON, err := marshalJSON(u.Server)
	if err != nil {
		return err
	}
	authJSON, err := marshalJSON(u.Auth)
	if err != nil {
		return err
	}
	headersJSON, err := marshalJSON(u.Headers)
	if err != nil {
		return err
	}
	rateLimitJSON, err := marshalJSON(u.RateLimit)
	if err != nil {
		return err
	}
	pluginsJSON, err := marshalJSON(u.Plugins)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalJSON(u.Tags)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE upstreams
		SET alias = ?, server = ?, protocol = ?, enabled = ?,
		    auth = ?, headers = ?, rate_limit = ?, plugins = ?, tags = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`,
		u.Alias, serverJSON, u.Protocol, boolToInt(u.Enabled),
		authJSON, headersJSON, rateLimitJSON, pluginsJSON, tagsJSON, u.UpdatedAt,
		u.TenantID, u.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ports.ErrDuplicate
		}
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// DeleteUpstream performs the cascading delete of §3 invariant 3 as a
// single transaction: the upstream row and every route referencing it.
func (r *Repository) DeleteUpstream(ctx context.Context, tenantID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE tenant_id = ? AND upstream_id = ?`, tenantID, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM upstreams WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return tx.Commit()
}

func scanUpstream(row *sql.Row) (upstream.Upstream, error) {
	var u upstream.Upstream
	var serverJSON, authJSON, headersJSON, rateLimitJSON, pluginsJSON, tagsJSON sql.NullString
	var enabled int

	err := row.Scan(&u.ID, &u.TenantID, &u.Alias, &serverJSON, &u.Protocol, &enabled,
		&authJSON, &headersJSON, &rateLimitJSON, &pluginsJSON, &tagsJSON, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return upstream.Upstream{}, ports.ErrNotFound
	}
	if err != nil {
		return upstream.Upstream{}, err
	}
	if err := fillUpstream(&u, enabled, serverJSON, authJSON, headersJSON, rateLimitJSON, pluginsJSON, tagsJSON); err != nil {
		return upstream.Upstream{}, err
	}
	return u, nil
}

func scanUpstreamRows(rows *sql.Rows) (upstream.Upstream, error) {
	var u upstream.Upstream
	var serverJSON, authJSON, headersJSON, rateLimitJSON, pluginsJSON, tagsJSON sql.NullString
	var enabled int

	err := rows.Scan(&u.ID, &u.TenantID, &u.Alias, &serverJSON, &u.Protocol, &enabled,
		&authJSON, &headersJSON, &rateLimitJSON, &pluginsJSON, &tagsJSON, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return upstream.Upstream{}, err
	}
	if err := fillUpstream(&u, enabled, serverJSON, authJSON, headersJSON, rateLimitJSON, pluginsJSON, tagsJSON); err != nil {
		return upstream.Upstream{}, err
	}
	return u, nil
}

func fillUpstream(u *upstream.Upstream, enabled int, serverJSON, authJSON, headersJSON, rateLimitJSON, pluginsJSON, tagsJSON sql.NullString) error {
	u.Enabled = enabled == 1
	if serverJSON.Valid {
		if err := json.Unmarshal([]byte(serverJSON.String), &u.Server); err != nil {
			return err
		}
	}
	if authJSON.Valid {
		var a upstream.AuthConfig
		if err := json.Unmarshal([]byte(authJSON.String), &a); err != nil {
			return err
		}
		u.Auth = &a
	}
	if headersJSON.Valid {
		var h upstream.HeaderRules
		if err := json.Unmarshal([]byte(headersJSON.String), &h); err != nil {
			return err
		}
		u.Headers = &h
	}
	if rateLimitJSON.Valid {
		var rl upstream.RateLimitConfig
		if err := json.Unmarshal([]byte(rateLimitJSON.String), &rl); err != nil {
			return err
		}
		u.RateLimit = &rl
	}
	if pluginsJSON.Valid {
		if err := json.Unmarshal([]byte(pluginsJSON.String), &u.Plugins); err != nil {
			return err
		}
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &u.Tags); err != nil {
			return err
		}
	}
	return nil
}

// --- Routes --------------------------------------------------------------

func (r *Repository) CreateRoute(ctx context.Context, rt route.Route) error {
	now := time.Now().UTC()
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = now
	}
	if rt.UpdatedAt.IsZero() {
		rt.UpdatedAt = now
	}

	matchJSON, err := marshalJSON(rt.MatchRules)
	if err != nil {
		return err
	}
	rateLimitJSON, err := marshalJSON(rt.RateLimit)
	if err != nil {
		return err
	}
	pluginsJSON, err := marshalJSON(rt.Plugins)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalJSON(rt.Tags)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO routes (
			id, tenant_id, upstream_id, match_rules, priority, enabled,
			plugins, rate_limit, tags, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rt.ID, rt.TenantID, rt.UpstreamID, matchJSON, rt.Priority, boolToInt(rt.Enabled),
		pluginsJSON, rateLimitJSON, tagsJSON, rt.CreatedAt, rt.UpdatedAt,
	)
	return err
}

const routeColumns = `id, tenant_id, upstream_id, match_rules, priority, enabled,
	plugins, rate_limit, tags, created_at, updated_at, rowid`

func (r *Repository) GetRoute(ctx context.Context, tenantID, id string) (route.Route, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return scanRoute(row)
}

func (r *Repository) ListRoutesByUpstream(ctx context.Context, tenantID, upstreamID string) ([]route.Route, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE tenant_id = ? AND upstream_id = ? ORDER BY rowid ASC`, tenantID, upstreamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []route.Route
	for rows.Next() {
		rt, err := scanRouteRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *Repository) ListRoutes(ctx context.Context, tenantID string, opts ports.ListOptions) ([]route.Route, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routes WHERE tenant_id = ?`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE tenant_id = ? ORDER BY rowid ASC LIMIT ? OFFSET ?`,
		tenantID, opts.Top, opts.Skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []route.Route
	for rows.Next() {
		rt, err := scanRouteRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rt)
	}
	return out, total, rows.Err()
}

func (r *Repository) UpdateRoute(ctx context.Context, rt route.Route) error {
	rt.UpdatedAt = time.Now().UTC()

	matchJSON, err := marshalJSON(rt.MatchRules)
	if err != nil {
		return err
	}
	rateLimitJSON, err := marshalJSON(rt.RateLimit)
	if err != nil {
		return err
	}
	pluginsJSON, err := marshalJSON(rt.Plugins)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalJSON(rt.Tags)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE routes
		SET match_rules = ?, priority = ?, enabled = ?, plugins = ?, rate_limit = ?, tags = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`,
		matchJSON, rt.Priority, boolToInt(rt.Enabled), pluginsJSON, rateLimitJSON, tagsJSON, rt.UpdatedAt,
		rt.TenantID, rt.ID,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteRoute(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM routes WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func scanRoute(row *sql.Row) (route.Route, error) {
	var rt route.Route
	var matchJSON, rateLimitJSON, pluginsJSON, tagsJSON sql.NullString
	var enabled int
	var seq int64

	err := row.Scan(&rt.ID, &rt.TenantID, &rt.UpstreamID, &matchJSON, &rt.Priority, &enabled,
		&pluginsJSON, &rateLimitJSON, &tagsJSON, &rt.CreatedAt, &rt.UpdatedAt, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return route.Route{}, ports.ErrNotFound
	}
	if err != nil {
		return route.Route{}, err
	}
	if err := fillRoute(&rt, enabled, seq, matchJSON, rateLimitJSON, pluginsJSON, tagsJSON); err != nil {
		return route.Route{}, err
	}
	return rt, nil
}

func scanRouteRows(rows *sql.Rows) (route.Route, error) {
	var rt route.Route
	var matchJSON, rateLimitJSON, pluginsJSON, tagsJSON sql.NullString
	var enabled int
	var seq int64

	err := rows.Scan(&rt.ID, &rt.TenantID, &rt.UpstreamID, &matchJSON, &rt.Priority, &enabled,
		&pluginsJSON, &rateLimitJSON, &tagsJSON, &rt.CreatedAt, &rt.UpdatedAt, &seq)
	if err != nil {
		return route.Route{}, err
	}
	if err := fillRoute(&rt, enabled, seq, matchJSON, rateLimitJSON, pluginsJSON, tagsJSON); err != nil {
		return route.Route{}, err
	}
	return rt, nil
}

func fillRoute(rt *route.Route, enabled int, seq int64, matchJSON, rateLimitJSON, pluginsJSON, tagsJSON sql.NullString) error {
	rt.Enabled = enabled == 1
	*rt = rt.WithSequence(uint64(seq))
	if matchJSON.Valid {
		if err := json.Unmarshal([]byte(matchJSON.String), &rt.MatchRules); err != nil {
			return err
		}
	}
	if rateLimitJSON.Valid {
		var rl upstream.RateLimitConfig
		if err := json.Unmarshal([]byte(rateLimitJSON.String), &rl); err != nil {
			return err
		}
		rt.RateLimit = &rl
	}
	if pluginsJSON.Valid {
		if err := json.Unmarshal([]byte(pluginsJSON.String), &rt.Plugins); err != nil {
			return err
		}
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &rt.Tags); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure interface compliance.
var _ ports.Repository = (*Repository)(nil)
