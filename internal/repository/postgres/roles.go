package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/core/port"
	"github.com/arklim/social-platform-authz/internal/repository"
)

const uniqueViolationCode = "23505"

var roleColumns = []string{"id", "code", "name", "description", "is_system", "revision", "scope_templates"}

// RoleRepository implements role persistence backed by PostgreSQL. Role codes
// are unique case-insensitively via an index on lower(code); scope templates
// live in a JSONB column in their canonical camelCase form.
type RoleRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	repo := &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new role. A duplicate code surfaces as repository.ErrConflict.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	templates, err := json.Marshal(role.ScopeTemplates)
	if err != nil {
		return fmt.Errorf("marshal scope templates: %w", err)
	}

	now := time.Now().UTC()
	stmt, args, err := r.builder.Insert("authz.roles").
		Columns("id", "code", "name", "description", "is_system", "revision", "scope_templates", "created_at", "updated_at").
		Values(role.ID, role.Code, role.Name, role.Description, role.IsSystem, role.Revision, templates, now, now).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// Update persists mutable role fields only when the stored revision matches
// role.Revision, bumping the revision in the same statement. A stale revision
// surfaces as repository.ErrConflict.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) (*domain.Role, error) {
	templates, err := json.Marshal(role.ScopeTemplates)
	if err != nil {
		return nil, fmt.Errorf("marshal scope templates: %w", err)
	}

	stmt, args, err := r.builder.Update("authz.roles").
		Set("name", role.Name).
		Set("description", role.Description).
		Set("scope_templates", templates).
		Set("revision", squirrel.Expr("revision + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": role.ID, "revision": role.Revision}).
		Suffix("RETURNING " + strings.Join(roleColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update role sql: %w", err)
	}

	updated, err := r.scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update role: %w", err)
	}

	// No row matched: missing role and stale revision look the same here.
	if _, getErr := r.GetByID(ctx, role.ID); getErr != nil {
		if errors.Is(getErr, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("update role: %w", getErr)
	}
	return nil, repository.ErrConflict
}

// Delete removes a role by ID (cascades to role assignments via FK).
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("authz.roles").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	stmt, args, err := r.selectRoles().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by id sql: %w", err)
	}

	role, err := r.scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role by id: %w", err)
	}

	return role, nil
}

// GetByCode retrieves a role by its case-insensitive code.
func (r *RoleRepository) GetByCode(ctx context.Context, code string) (*domain.Role, error) {
	stmt, args, err := r.selectRoles().
		Where(squirrel.Expr("lower(code) = ?", domain.NormalizeRoleCode(code))).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by code sql: %w", err)
	}

	role, err := r.scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role by code: %w", err)
	}

	return role, nil
}

// GetByCodes retrieves the subset of roles whose codes are present, without
// erroring on codes that match nothing.
func (r *RoleRepository) GetByCodes(ctx context.Context, codes []string) ([]domain.Role, error) {
	if len(codes) == 0 {
		return []domain.Role{}, nil
	}

	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		normalized = append(normalized, domain.NormalizeRoleCode(code))
	}

	stmt, args, err := r.selectRoles().
		Where(squirrel.Expr("lower(code) = ANY(?)", normalized)).
		OrderBy("code ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select roles by codes sql: %w", err)
	}

	return r.queryRoles(ctx, stmt, args...)
}

// List retrieves all stored roles sorted by code.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.selectRoles().
		OrderBy("code ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	return r.queryRoles(ctx, stmt, args...)
}

func (r *RoleRepository) selectRoles() squirrel.SelectBuilder {
	return r.builder.Select(roleColumns...).From("authz.roles")
}

func (r *RoleRepository) queryRoles(ctx context.Context, stmt string, args ...any) ([]domain.Role, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := r.scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

func (r *RoleRepository) scanRole(row pgx.Row) (*domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
		templates   []byte
	)

	if err := row.Scan(
		&role.ID,
		&role.Code,
		&role.Name,
		&description,
		&role.IsSystem,
		&role.Revision,
		&templates,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		desc := description.String
		role.Description = &desc
	}

	if len(templates) > 0 {
		if err := json.Unmarshal(templates, &role.ScopeTemplates); err != nil {
			return nil, fmt.Errorf("unmarshal scope templates: %w", err)
		}
	}

	return &role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
