package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/core/port"
	"github.com/arklim/social-platform-authz/internal/repository"
)

// UserAccessRepository implements port.UserAccessRepository using PostgreSQL.
// It owns only the authorization attachments of a user: direct permission
// grants and role assignments with their parameter bindings.
type UserAccessRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserAccessRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserAccessRepository(exec pgExecutor) *UserAccessRepository {
	repo := &UserAccessRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserAccessRepository) WithTx(tx pgx.Tx) *UserAccessRepository {
	if tx == nil {
		return r
	}
	return &UserAccessRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// ListGrants returns the direct permission grants of a user ordered by grant time.
func (r *UserAccessRepository) ListGrants(ctx context.Context, userID string) ([]domain.UserPermissionGrant, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "permission", "is_allow", "description", "granted_by", "granted_at").
		From("authz.user_permission_grants").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("granted_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list grants sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	grants := make([]domain.UserPermissionGrant, 0)
	for rows.Next() {
		var (
			grant       domain.UserPermissionGrant
			description sql.NullString
		)
		if err := rows.Scan(
			&grant.ID,
			&grant.UserID,
			&grant.Permission,
			&grant.IsAllow,
			&description,
			&grant.GrantedBy,
			&grant.GrantedAt,
		); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		if description.Valid {
			desc := description.String
			grant.Description = &desc
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}

	return grants, nil
}

// AddGrant inserts a direct permission grant. A duplicate of the same
// permission and direction for the user surfaces as repository.ErrConflict.
func (r *UserAccessRepository) AddGrant(ctx context.Context, grant domain.UserPermissionGrant) error {
	stmt, args, err := r.builder.Insert("authz.user_permission_grants").
		Columns("id", "user_id", "permission", "is_allow", "description", "granted_by", "granted_at").
		Values(grant.ID, grant.UserID, grant.Permission, grant.IsAllow, grant.Description, grant.GrantedBy, grant.GrantedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert grant sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert grant: %w", err)
	}

	return nil
}

// RemoveGrant deletes a single grant owned by the user.
func (r *UserAccessRepository) RemoveGrant(ctx context.Context, userID, grantID string) error {
	stmt, args, err := r.builder.Delete("authz.user_permission_grants").
		Where(squirrel.Eq{"id": grantID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete grant sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListRoleAssignments returns the role assignments of a user ordered by assignment time.
func (r *UserAccessRepository) ListRoleAssignments(ctx context.Context, userID string) ([]domain.UserRoleAssignment, error) {
	stmt, args, err := r.selectAssignments().
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("assigned_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list role assignments sql: %w", err)
	}

	return r.queryAssignments(ctx, stmt, args...)
}

// AddRoleAssignment inserts a role assignment. The same role code may be held
// repeatedly with different parameter bindings; an exact duplicate surfaces as
// repository.ErrConflict.
func (r *UserAccessRepository) AddRoleAssignment(ctx context.Context, assignment domain.UserRoleAssignment) error {
	bindings, err := json.Marshal(assignment.ParameterValues)
	if err != nil {
		return fmt.Errorf("marshal parameter values: %w", err)
	}

	stmt, args, err := r.builder.Insert("authz.user_role_assignments").
		Columns("id", "user_id", "role_code", "parameter_values", "assigned_by", "assigned_at").
		Values(assignment.ID, assignment.UserID, domain.NormalizeRoleCode(assignment.RoleCode), bindings, assignment.AssignedBy, assignment.AssignedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role assignment sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert role assignment: %w", err)
	}

	return nil
}

// RemoveRoleAssignment deletes a single assignment owned by the user.
func (r *UserAccessRepository) RemoveRoleAssignment(ctx context.Context, userID, assignmentID string) error {
	stmt, args, err := r.builder.Delete("authz.user_role_assignments").
		Where(squirrel.Eq{"id": assignmentID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role assignment sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role assignment: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListAssignmentsByRoleCode reports holdings of a role across all users.
func (r *UserAccessRepository) ListAssignmentsByRoleCode(ctx context.Context, roleCode string) ([]domain.UserRoleAssignment, error) {
	stmt, args, err := r.selectAssignments().
		Where(squirrel.Eq{"role_code": domain.NormalizeRoleCode(roleCode)}).
		OrderBy("user_id ASC", "assigned_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list assignments by role sql: %w", err)
	}

	return r.queryAssignments(ctx, stmt, args...)
}

func (r *UserAccessRepository) selectAssignments() squirrel.SelectBuilder {
	return r.builder.Select("id", "user_id", "role_code", "parameter_values", "assigned_by", "assigned_at").
		From("authz.user_role_assignments")
}

func (r *UserAccessRepository) queryAssignments(ctx context.Context, stmt string, args ...any) ([]domain.UserRoleAssignment, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]domain.UserRoleAssignment, 0)
	for rows.Next() {
		var (
			assignment domain.UserRoleAssignment
			bindings   []byte
		)
		if err := rows.Scan(
			&assignment.ID,
			&assignment.UserID,
			&assignment.RoleCode,
			&bindings,
			&assignment.AssignedBy,
			&assignment.AssignedAt,
		); err != nil {
			return nil, fmt.Errorf("scan role assignment: %w", err)
		}
		if len(bindings) > 0 {
			if err := json.Unmarshal(bindings, &assignment.ParameterValues); err != nil {
				return nil, fmt.Errorf("unmarshal parameter values: %w", err)
			}
		}
		assignments = append(assignments, assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role assignments: %w", err)
	}

	return assignments, nil
}

var _ port.UserAccessRepository = (*UserAccessRepository)(nil)
