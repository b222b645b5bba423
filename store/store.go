// Package store is the transactional persistence boundary for patients and
// their issued codes. The transaction executor and the code allocator only
// see the interfaces below; GormStore and MemoryStore implement them.
package store

import (
	"context"

	"github.com/erlaaaand/dentizy/model"
)

// Beginner opens transactions.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// Store is the non-transactional view plus the ability to begin a transaction.
type Store interface {
	Beginner
	// CountCodesWithPrefix counts issued codes starting with prefix + "-",
	// including codes of soft-deleted patients.
	CountCodesWithPrefix(ctx context.Context, prefix string) (int64, error)
	// FindPatientByCode returns nil, nil when no live patient has code.
	FindPatientByCode(ctx context.Context, code string) (*model.Patient, error)
}

// Tx is one open transaction. Exactly one of Commit or Rollback ends it.
type Tx interface {
	// LockAndQueryLatest takes a pessimistic write lock on the highest code
	// for prefix and returns it. found is false when no code exists yet; the
	// lock still covers the (empty) range until the transaction ends.
	LockAndQueryLatest(ctx context.Context, prefix string) (code string, found bool, err error)
	FindPatientByCode(ctx context.Context, code string) (*model.Patient, error)
	HasPatientWithNameAndPhone(ctx context.Context, fullName string, phoneNumbers []string) (bool, error)
	CreatePatient(ctx context.Context, patient *model.Patient) error
	Commit() error
	Rollback() error
}

// codePattern is the LIKE pattern matching every code issued under prefix.
func codePattern(prefix string) string {
	return prefix + "-%"
}
