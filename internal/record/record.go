package record

import (
	"path/filepath"
	"sort"
	"strings"
)

type Format string

const (
	FormatKeyValue Format = "kv"
	FormatMarkup   Format = "markup"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
)

// Raw is one unparsed record as handed over by a source. CSV rows carry their
// header in Columns and the cells in Values; every other format uses Text.
type Raw struct {
	Ref     string   `json:"ref"`
	Format  Format   `json:"format"`
	Text    string   `json:"text,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Values  []string `json:"values,omitempty"`
}

func FormatFromExt(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, true
	case ".kv", ".txt":
		return FormatKeyValue, true
	case ".xml", ".html", ".htm":
		return FormatMarkup, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

// Record is an ordered field name to scalar mapping.
type Record struct {
	keys   []string
	values map[string]string
}

func New() Record {
	return Record{values: map[string]string{}}
}

// FromMap builds a record with keys in sorted order; handy for literals.
func FromMap(m map[string]string) Record {
	r := New()
	for _, k := range sortedKeys(m) {
		r.Set(k, m[k])
	}
	return r
}

func (r Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r Record) Len() int { return len(r.keys) }

// Set overwrites an existing value in place or appends a new field.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = map[string]string{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// add keeps the first value seen for a key.
func (r *Record) add(key, value string) bool {
	if r.Has(key) {
		return false
	}
	r.Set(key, value)
	return true
}

func (r *Record) Delete(key string) {
	if !r.Has(key) {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

func (r Record) Clone() Record {
	out := Record{keys: make([]string, len(r.keys)), values: make(map[string]string, len(r.values))}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
