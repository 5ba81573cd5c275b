package records

import "context"

// Store persists records. Implementations return ErrNotFound for missing ids and
// ErrDuplicate when the natural key unique constraint rejects a write.
type Store interface {
	Insert(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	Get(ctx context.Context, id int64) (Record, error)
	FindByKey(ctx context.Context, k Key) (Record, error)
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) (int64, error)
	DeleteVillage(ctx context.Context, village string) (int64, error)

	// List orders by id, newest first.
	List(ctx context.Context, p Page) ([]Record, error)
	Find(ctx context.Context, f Filter) ([]Record, error)
	ByMandal(ctx context.Context, mandal string) ([]Record, error)
	ByVillage(ctx context.Context, village string) ([]Record, error)
	WithFlag(ctx context.Context, flag Flag) ([]Record, error)
	WithBirthDate(ctx context.Context) ([]Record, error)
	Stats(ctx context.Context) (Stats, error)

	// SetBirthData rewrites date of birth and flags for many records atomically.
	SetBirthData(ctx context.Context, updates []BirthUpdate) (int64, error)
}

// AuditLog records maintenance runs.
type AuditLog interface {
	RecordRun(ctx context.Context, run MaintenanceRun) error
	Runs(ctx context.Context, name string) ([]MaintenanceRun, error)
}

// Locker serializes check-then-insert sequences per natural key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
