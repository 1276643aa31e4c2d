package accounts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("accounts: not found")
	ErrAlreadyRegistered = errors.New("accounts: provider subject already registered")
	ErrMissingField      = errors.New("accounts: required field missing")
	ErrDuplicate         = errors.New("accounts: duplicate value")
)

// DuplicateError lists the unique fields that clash with another account.
// It matches ErrDuplicate with errors.Is.
type DuplicateError struct {
	Fields map[string]string
}

func (e *DuplicateError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("accounts: duplicate %s", strings.Join(keys, ", "))
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }
