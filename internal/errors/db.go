package errors

import "fmt"

// DBError is the base for every store failure; Op names the failed operation.
type DBError struct {
	Op     string
	Reason string
}

func NewDBError(op, reason string) *DBError {
	return &DBError{Op: op, Reason: reason}
}

func (e *DBError) Error() string {
	return fmt.Sprintf("store.%s: %s", e.Op, e.Reason)
}

type DBInternalError struct {
	DBError
	cause error
}

func NewDBInternalError(op string, cause error) *DBInternalError {
	reason := "internal error"
	if cause != nil {
		reason = cause.Error()
	}
	return &DBInternalError{DBError: *NewDBError(op, reason), cause: cause}
}

func (e *DBInternalError) Unwrap() error { return e.cause }

type DBNotFoundError struct {
	DBError
}

func NewDBNotFoundError(op, reason string) *DBNotFoundError {
	return &DBNotFoundError{DBError: *NewDBError(op, reason)}
}

type DBUniqueViolationError struct {
	DBError
	Column string
}

func (e *DBUniqueViolationError) Error() string {
	return fmt.Sprintf("%s (constraint %s)", e.DBError.Error(), e.Column)
}

type DBForeignKeyViolationError struct {
	DBError
	ForeignKeyTable string
}

func (e *DBForeignKeyViolationError) Error() string {
	return fmt.Sprintf("%s (table %s)", e.DBError.Error(), e.ForeignKeyTable)
}

// IsNotFound reports whether err is a DBNotFoundError.
func IsNotFound(err error) bool {
	var nf *DBNotFoundError
	return As(err, &nf)
}
