package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erlaaaand/dentizy/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists patients through gorm. Row locks use SELECT ... FOR UPDATE
// on MySQL. PostgreSQL first takes a transaction scoped advisory lock on the
// date prefix, since FOR UPDATE there neither covers an empty day nor lets a
// waiter see rows inserted by the holder. The SQLite dialect drops the locking
// clause and relies on its single-writer lock instead.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Begin(ctx context.Context) (Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{tx: tx}, nil
}

func (s *GormStore) CountCodesWithPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Unscoped().
		Model(&model.Patient{}).
		Where("patient_code LIKE ?", codePattern(prefix)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count codes for %s: %w", prefix, err)
	}
	return count, nil
}

func (s *GormStore) FindPatientByCode(ctx context.Context, code string) (*model.Patient, error) {
	return findPatientByCode(s.db.WithContext(ctx), code)
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) LockAndQueryLatest(ctx context.Context, prefix string) (string, bool, error) {
	if stmt := prefixLockStatement(t.tx.Dialector.Name()); stmt != "" {
		if err := t.tx.WithContext(ctx).Exec(stmt, prefix).Error; err != nil {
			return "", false, fmt.Errorf("lock date prefix %s: %w", prefix, err)
		}
	}

	var patient model.Patient
	err := t.tx.WithContext(ctx).Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "patient_code").
		Where("patient_code LIKE ?", codePattern(prefix)).
		Order("patient_code DESC").
		Limit(1).
		Take(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return patient.PatientCode, true, nil
}

func (t *gormTx) FindPatientByCode(ctx context.Context, code string) (*model.Patient, error) {
	return findPatientByCode(t.tx.WithContext(ctx), code)
}

func (t *gormTx) HasPatientWithNameAndPhone(ctx context.Context, fullName string, phoneNumbers []string) (bool, error) {
	if len(phoneNumbers) == 0 {
		return false, nil
	}

	var matches []model.Patient
	if err := t.tx.WithContext(ctx).Where("full_name = ?", fullName).Find(&matches).Error; err != nil {
		return false, err
	}
	return anyPhoneMatches(matches, phoneNumbers), nil
}

func (t *gormTx) CreatePatient(ctx context.Context, patient *model.Patient) error {
	return t.tx.WithContext(ctx).Create(patient).Error
}

func (t *gormTx) Commit() error {
	return t.tx.Commit().Error
}

func (t *gormTx) Rollback() error {
	return t.tx.Rollback().Error
}

// prefixLockStatement returns the statement serializing writers of one date
// prefix, or "" when the row lock alone is enough.
func prefixLockStatement(dialect string) string {
	if dialect == "postgres" {
		return "SELECT pg_advisory_xact_lock(hashtext(?))"
	}
	return ""
}

func findPatientByCode(db *gorm.DB, code string) (*model.Patient, error) {
	var patient model.Patient
	err := db.Where("patient_code = ?", code).First(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &patient, nil
}

// anyPhoneMatches reports whether any stored comma separated phone list
// shares a number with phoneNumbers.
func anyPhoneMatches(patients []model.Patient, phoneNumbers []string) bool {
	phoneSet := make(map[string]struct{}, len(phoneNumbers))
	for _, p := range phoneNumbers {
		phoneSet[p] = struct{}{}
	}
	for _, m := range patients {
		for _, sp := range strings.Split(m.PhoneNumber, ",") {
			if _, ok := phoneSet[strings.TrimSpace(sp)]; ok {
				return true
			}
		}
	}
	return false
}
