package livematch

import "context"

// Repository loads and durably stores the whole live database.
type Repository interface {
	Load(ctx context.Context) (Database, error)
	Persist(ctx context.Context, db Database) error
}
