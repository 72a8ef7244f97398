package ids

import (
	"fmt"
	"strings"

	"studygraph/internal/record"
	"studygraph/internal/schema"
	"studygraph/internal/util"
)

type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

// Canonicalize maps a raw field value to its canonical form. Primary keys and
// foreign keys get the owning kind's prefix; reference fields are returned
// unchanged because they follow the ontology's own ID scheme.
func Canonicalize(kind schema.Kind, field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if field == kind.PrimaryKey {
		return PrimaryKey(kind, raw)
	}
	if _, ok := kind.Reference(field); ok {
		return raw, nil
	}
	if fk, ok := kind.ForeignKey(field); ok {
		target, ok := schema.Lookup(fk.Target)
		if !ok {
			return "", fmt.Errorf("%w: %s", util.ErrUnknownKind, fk.Target)
		}
		return PrimaryKey(target, raw)
	}
	return raw, nil
}

// PrimaryKey returns "<prefix><n>" for a numeric raw value. Values already
// carrying the prefix are accepted so reruns over prefixed data are stable.
func PrimaryKey(kind schema.Kind, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	v = strings.TrimPrefix(v, kind.Prefix)
	n, ok := numericID(v)
	if !ok {
		return "", fmt.Errorf("%w: %s %s %q is not numeric", util.ErrInvalidIdentifier, kind.Name, kind.PrimaryKey, raw)
	}
	return kind.Prefix + n, nil
}

// CanonicalizeRecord canonicalizes the primary key and the foreign keys of a
// record. A bad primary key fails the record; a bad foreign key drops that
// field and is reported.
func CanonicalizeRecord(kind schema.Kind, rec record.Record) (record.Record, []FieldError, error) {
	pkRaw, ok := rec.Get(kind.PrimaryKey)
	if !ok {
		return record.Record{}, nil, fmt.Errorf("%w: %s has no %s", util.ErrMissingKey, kind.Name, kind.PrimaryKey)
	}
	pk, err := PrimaryKey(kind, pkRaw)
	if err != nil {
		return record.Record{}, nil, err
	}
	out := rec.Clone()
	out.Set(kind.PrimaryKey, pk)

	var fieldErrs []FieldError
	for _, fk := range kind.ForeignKeys {
		raw, ok := out.Get(fk.Field)
		if !ok {
			continue
		}
		v, err := Canonicalize(kind, fk.Field, raw)
		if err != nil {
			out.Delete(fk.Field)
			fieldErrs = append(fieldErrs, FieldError{Field: fk.Field, Value: raw, Err: err})
			continue
		}
		out.Set(fk.Field, v)
	}
	return out, fieldErrs, nil
}

// numericID normalizes "13", "013" and "13.0" to "13".
func numericID(s string) (string, bool) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if !allZero(s[i+1:]) {
			return "", false
		}
		s = s[:i]
	}
	if !isDigits(s) {
		return "", false
	}
	return trimZeros(s), true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func allZero(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' {
			return false
		}
	}
	return true
}
