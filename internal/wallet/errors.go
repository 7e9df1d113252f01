package wallet

import "fmt"

// ErrorKind classifies an operation failure so callers can decide how to
// surface it without parsing error strings.
type ErrorKind int

const (
	// KindConfig means the session or its dependencies are not set up,
	// e.g. an operation was called before Initialize.
	KindConfig ErrorKind = iota
	// KindValidation means the caller supplied bad input.
	KindValidation
	// KindExternal means an upstream service call failed.
	KindExternal
	// KindStorage means the operation itself succeeded but persisting
	// its result did not.
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	case KindExternal:
		return "external"
	case KindStorage:
		return "storage"
	}
	return "unknown"
}

// OpError is the error type returned by every Session operation. Op names
// the operation that failed, Kind classifies the failure.
type OpError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func configErr(op, format string, args ...interface{}) *OpError {
	return &OpError{Op: op, Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

func validationErr(op, format string, args ...interface{}) *OpError {
	return &OpError{Op: op, Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func externalErr(op string, err error) *OpError {
	return &OpError{Op: op, Kind: KindExternal, Err: err}
}

func storageErr(op string, err error) *OpError {
	return &OpError{Op: op, Kind: KindStorage, Err: err}
}
