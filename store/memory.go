package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erlaaaand/dentizy/model"
	"gorm.io/gorm"
)

const defaultLockWaitTimeout = 5 * time.Second

var (
	// ErrLockWaitTimeout mirrors the driver message so it is classified as transient.
	ErrLockWaitTimeout = errors.New("lock wait timeout exceeded; try restarting transaction")
	ErrTxDone          = errors.New("transaction has already been committed or rolled back")
	ErrDuplicateCode   = errors.New("duplicate patient_code")
)

// MemoryStore keeps patients in process memory. Each date prefix has its own
// pessimistic lock, held from LockAndQueryLatest until Commit or Rollback, so
// concurrent transactions on the same prefix serialize exactly like row locks
// on a relational database. Writes are buffered per transaction.
type MemoryStore struct {
	mu       sync.RWMutex
	patients []model.Patient
	nextID   uint

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	lockWaitTimeout time.Duration
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithLockWaitTimeout bounds how long LockAndQueryLatest waits for a held lock.
func WithLockWaitTimeout(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.lockWaitTimeout = d
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		nextID:          1,
		locks:           make(map[string]chan struct{}),
		lockWaitTimeout: defaultLockWaitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{store: s, held: make(map[string]chan struct{})}, nil
}

func (s *MemoryStore) CountCodesWithPrefix(ctx context.Context, prefix string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, p := range s.patients {
		if strings.HasPrefix(p.PatientCode, prefix+"-") {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) FindPatientByCode(ctx context.Context, code string) (*model.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(code), nil
}

// Seed inserts committed patients directly, bypassing locks.
func (s *MemoryStore) Seed(patients ...model.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patients {
		if err := s.insertLocked(p); err != nil {
			return err
		}
	}
	return nil
}

// Patients returns a copy of the committed rows ordered by ID.
func (s *MemoryStore) Patients() []model.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Patient, len(s.patients))
	copy(out, s.patients)
	return out
}

func (s *MemoryStore) findLocked(code string) *model.Patient {
	for i := range s.patients {
		p := s.patients[i]
		if p.PatientCode == code && !p.DeletedAt.Valid {
			return &p
		}
	}
	return nil
}

func (s *MemoryStore) insertLocked(p model.Patient) error {
	for _, existing := range s.patients {
		if existing.PatientCode == p.PatientCode {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, p.PatientCode)
		}
	}
	now := time.Now()
	p.ID = s.nextID
	s.nextID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.patients = append(s.patients, p)
	return nil
}

func (s *MemoryStore) lockFor(prefix string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[prefix]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[prefix] = l
	}
	return l
}

type memoryTx struct {
	store   *MemoryStore
	held    map[string]chan struct{}
	pending []*model.Patient
	done    bool
}

func (t *memoryTx) LockAndQueryLatest(ctx context.Context, prefix string) (string, bool, error) {
	if t.done {
		return "", false, ErrTxDone
	}
	if _, ok := t.held[prefix]; !ok {
		lock := t.store.lockFor(prefix)
		timer := time.NewTimer(t.store.lockWaitTimeout)
		defer timer.Stop()
		select {
		case lock <- struct{}{}:
			t.held[prefix] = lock
		case <-timer.C:
			return "", false, ErrLockWaitTimeout
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var codes []string
	for _, p := range t.store.patients {
		if strings.HasPrefix(p.PatientCode, prefix+"-") {
			codes = append(codes, p.PatientCode)
		}
	}
	for _, p := range t.pending {
		if strings.HasPrefix(p.PatientCode, prefix+"-") {
			codes = append(codes, p.PatientCode)
		}
	}
	if len(codes) == 0 {
		return "", false, nil
	}
	sort.Strings(codes)
	return codes[len(codes)-1], true, nil
}

func (t *memoryTx) FindPatientByCode(ctx context.Context, code string) (*model.Patient, error) {
	if t.done {
		return nil, ErrTxDone
	}
	for _, p := range t.pending {
		if p.PatientCode == code {
			found := *p
			return &found, nil
		}
	}
	return t.store.FindPatientByCode(ctx, code)
}

func (t *memoryTx) HasPatientWithNameAndPhone(ctx context.Context, fullName string, phoneNumbers []string) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	if len(phoneNumbers) == 0 {
		return false, nil
	}

	t.store.mu.RLock()
	var matches []model.Patient
	for _, p := range t.store.patients {
		if p.FullName == fullName && !p.DeletedAt.Valid {
			matches = append(matches, p)
		}
	}
	t.store.mu.RUnlock()
	for _, p := range t.pending {
		if p.FullName == fullName {
			matches = append(matches, *p)
		}
	}
	return anyPhoneMatches(matches, phoneNumbers), nil
}

func (t *memoryTx) CreatePatient(ctx context.Context, patient *model.Patient) error {
	if t.done {
		return ErrTxDone
	}
	t.pending = append(t.pending, patient)
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	defer t.release()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Validate the whole batch before applying any row.
	seen := make(map[string]struct{}, len(t.pending))
	for _, p := range t.pending {
		if _, dup := seen[p.PatientCode]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, p.PatientCode)
		}
		seen[p.PatientCode] = struct{}{}
		for _, existing := range t.store.patients {
			if existing.PatientCode == p.PatientCode {
				return fmt.Errorf("%w: %s", ErrDuplicateCode, p.PatientCode)
			}
		}
	}
	for _, p := range t.pending {
		if err := t.store.insertLocked(*p); err != nil {
			return err
		}
		committed := t.store.patients[len(t.store.patients)-1]
		p.Model = committed.Model
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.release()
	return nil
}

func (t *memoryTx) release() {
	t.done = true
	t.pending = nil
	for prefix, lock := range t.held {
		<-lock
		delete(t.held, prefix)
	}
}

// SoftDelete marks the patient with code as deleted, keeping its code reserved.
func (s *MemoryStore) SoftDelete(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.patients {
		if s.patients[i].PatientCode == code {
			s.patients[i].DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
			return true
		}
	}
	return false
}
