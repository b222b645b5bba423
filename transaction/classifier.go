package transaction

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Reason is a low-cardinality label for a transient database failure.
type Reason string

const (
	ReasonDeadlock             Reason = "deadlock"
	ReasonLockTimeout          Reason = "lock_timeout"
	ReasonSerializationFailure Reason = "serialization_failure"
	ReasonBusy                 Reason = "busy"
	ReasonUnknown              Reason = "unknown"
)

var mysqlCodes = map[uint16]Reason{
	1213: ReasonDeadlock,    // ER_LOCK_DEADLOCK
	1205: ReasonLockTimeout, // ER_LOCK_WAIT_TIMEOUT
}

var postgresCodes = map[string]Reason{
	"40P01": ReasonDeadlock,
	"40001": ReasonSerializationFailure,
	"55P03": ReasonLockTimeout,
}

// messageReasons covers drivers that only surface text. Matched case-insensitively.
var messageReasons = []struct {
	substr string
	reason Reason
}{
	{"deadlock", ReasonDeadlock},
	{"lock wait timeout", ReasonLockTimeout},
	{"lock timeout", ReasonLockTimeout},
	{"serialization failure", ReasonSerializationFailure},
	{"could not serialize access", ReasonSerializationFailure},
	{"database is locked", ReasonBusy},
	{"database table is locked", ReasonBusy},
	{"sqlite_busy", ReasonBusy},
	{"resource busy", ReasonBusy},
}

// IsRetryable reports whether err is a transient failure worth another attempt.
// Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	return Classify(err) != ReasonUnknown
}

// Classify maps err to a transient failure reason, or ReasonUnknown.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if reason, ok := mysqlCodes[mysqlErr.Number]; ok {
			return reason
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := postgresCodes[pgErr.Code]; ok {
			return reason
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if reason, ok := postgresCodes[string(pqErr.Code)]; ok {
			return reason
		}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return ReasonBusy
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range messageReasons {
		if strings.Contains(msg, m.substr) {
			return m.reason
		}
	}
	return ReasonUnknown
}
