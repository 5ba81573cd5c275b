package records

import (
	"errors"
	"sort"
	"strings"

	"github.com/tartampluch/smart-village/internal/config"
)

var (
	ErrNotFound         = errors.New(config.ErrRecordNotFound)
	ErrDuplicate        = errors.New(config.ErrRecordDuplicate)
	ErrInvalidInput     = errors.New(config.ErrRecordInvalid)
	ErrConfirmRequired  = errors.New(config.ErrConfirmRequired)
	ErrUnknownStrategy  = errors.New(config.ErrStrategyUnknown)
	ErrDuplicateAborted = errors.New(config.ErrDuplicateAborted)
)

// ValidationError lists the offending fields by their JSON names.
type ValidationError struct {
	Missing []string
	Invalid []string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return config.ErrRecordInvalid + ": " + strings.Join(msgs, "; ")
}

// Unwrap makes errors.Is(err, ErrInvalidInput) hold.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func (e *ValidationError) addInvalid(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Invalid = append(e.Invalid, field)
	e.Fields[field] = msg
}
