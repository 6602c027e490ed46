package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/repository"
)

func mustBindingsJSON(t *testing.T, bindings map[string]string) []byte {
	t.Helper()
	data, err := json.Marshal(bindings)
	if err != nil {
		t.Fatalf("marshal bindings: %v", err)
	}
	return data
}

func TestUserAccessRepository_AddGrant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	desc := "temporary read access"
	grant := domain.UserPermissionGrant{
		ID:          "grant-1",
		UserID:      "user-1",
		Permission:  domain.PermissionFavoritesRead,
		IsAllow:     true,
		Description: &desc,
		GrantedBy:   "admin-1",
		GrantedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(`INSERT INTO authz\.user_permission_grants`).
		WithArgs(
			grant.ID,
			grant.UserID,
			grant.Permission,
			grant.IsAllow,
			grant.Description,
			grant.GrantedBy,
			grant.GrantedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.AddGrant(context.Background(), grant); err != nil {
		t.Fatalf("AddGrant returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserAccessRepository_AddGrantDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	grantedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO authz\.user_permission_grants`).
		WithArgs(
			"grant-1", "user-1", domain.PermissionFavoritesWrite, false,
			(*string)(nil), "admin-1", grantedAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "user_permission_grants_subject_idx"})

	err = repo.AddGrant(context.Background(), domain.UserPermissionGrant{
		ID:         "grant-1",
		UserID:     "user-1",
		Permission: domain.PermissionFavoritesWrite,
		IsAllow:    false,
		GrantedBy:  "admin-1",
		GrantedAt:  grantedAt,
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserAccessRepository_ListGrants(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	grantedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "user_id", "permission", "is_allow", "description", "granted_by", "granted_at"}).
		AddRow("grant-1", "user-1", domain.PermissionFavoritesRead, true, "reader", "admin-1", grantedAt).
		AddRow("grant-2", "user-1", domain.PermissionFavoritesWrite, false, nil, "admin-1", grantedAt.Add(time.Minute))

	mock.ExpectQuery(`SELECT id, user_id, permission, is_allow, description, granted_by, granted_at FROM authz\.user_permission_grants`).
		WithArgs("user-1").
		WillReturnRows(rows)

	grants, err := repo.ListGrants(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListGrants returned error: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	if grants[0].Description == nil || *grants[0].Description != "reader" {
		t.Errorf("expected description 'reader', got %v", grants[0].Description)
	}
	if grants[1].Description != nil {
		t.Errorf("expected nil description, got %q", *grants[1].Description)
	}
	if grants[1].IsAllow {
		t.Errorf("expected second grant to be a deny")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserAccessRepository_RemoveGrantNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	mock.ExpectExec(`DELETE FROM authz\.user_permission_grants`).
		WithArgs("grant-ghost", "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.RemoveGrant(context.Background(), "user-1", "grant-ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserAccessRepository_AddRoleAssignmentNormalizesCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	assignedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	bindings := map[string]string{domain.ParamUserID: "user-7"}
	assignment := domain.UserRoleAssignment{
		ID:              "assign-1",
		UserID:          "user-7",
		RoleCode:        "  Analyst ",
		ParameterValues: bindings,
		AssignedBy:      "admin-1",
		AssignedAt:      assignedAt,
	}

	mock.ExpectExec(`INSERT INTO authz\.user_role_assignments`).
		WithArgs(
			assignment.ID,
			assignment.UserID,
			"analyst",
			mustBindingsJSON(t, bindings),
			assignment.AssignedBy,
			assignment.AssignedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.AddRoleAssignment(context.Background(), assignment); err != nil {
		t.Fatalf("AddRoleAssignment returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserAccessRepository_AddRoleAssignmentDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	assignedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO authz\.user_role_assignments`).
		WithArgs(
			"assign-1", "user-7", "analyst",
			mustBindingsJSON(t, nil),
			"admin-1", assignedAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "user_role_assignments_holding_idx"})

	err = repo.AddRoleAssignment(context.Background(), domain.UserRoleAssignment{
		ID:         "assign-1",
		UserID:     "user-7",
		RoleCode:   "analyst",
		AssignedBy: "admin-1",
		AssignedAt: assignedAt,
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserAccessRepository_ListRoleAssignmentsDecodesBindings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	assignedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	bindings := map[string]string{domain.ParamUserID: "user-7", domain.ParamAccountID: "acc-2"}
	rows := pgxmock.NewRows([]string{"id", "user_id", "role_code", "parameter_values", "assigned_by", "assigned_at"}).
		AddRow("assign-1", "user-7", "analyst", mustBindingsJSON(t, bindings), "admin-1", assignedAt).
		AddRow("assign-2", "user-7", "analyst", []byte(nil), "admin-1", assignedAt.Add(time.Minute))

	mock.ExpectQuery(`SELECT id, user_id, role_code, parameter_values, assigned_by, assigned_at FROM authz\.user_role_assignments`).
		WithArgs("user-7").
		WillReturnRows(rows)

	assignments, err := repo.ListRoleAssignments(context.Background(), "user-7")
	if err != nil {
		t.Fatalf("ListRoleAssignments returned error: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].ParameterValues[domain.ParamUserID] != "user-7" || assignments[0].ParameterValues[domain.ParamAccountID] != "acc-2" {
		t.Errorf("unexpected bindings: %+v", assignments[0].ParameterValues)
	}
	if assignments[1].ParameterValues != nil {
		t.Errorf("expected nil bindings for unbound holding, got %+v", assignments[1].ParameterValues)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserAccessRepository_RemoveRoleAssignmentNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	mock.ExpectExec(`DELETE FROM authz\.user_role_assignments`).
		WithArgs("assign-ghost", "user-7").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.RemoveRoleAssignment(context.Background(), "user-7", "assign-ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserAccessRepository_ListAssignmentsByRoleCodeNormalizesCase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserAccessRepository(mock)

	assignedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "user_id", "role_code", "parameter_values", "assigned_by", "assigned_at"}).
		AddRow("assign-1", "user-1", "analyst", []byte(nil), "admin-1", assignedAt).
		AddRow("assign-2", "user-2", "analyst", []byte(nil), "admin-1", assignedAt)

	mock.ExpectQuery(`SELECT id, user_id, role_code, parameter_values, assigned_by, assigned_at FROM authz\.user_role_assignments`).
		WithArgs("analyst").
		WillReturnRows(rows)

	assignments, err := repo.ListAssignmentsByRoleCode(context.Background(), " Analyst")
	if err != nil {
		t.Fatalf("ListAssignmentsByRoleCode returned error: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].UserID != "user-1" || assignments[1].UserID != "user-2" {
		t.Errorf("unexpected holders: %+v", assignments)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
