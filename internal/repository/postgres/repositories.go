package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Roles *RoleRepository
	Users *UserAccessRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Roles: NewRoleRepository(pool),
		Users: NewUserAccessRepository(pool),
	}
}
