package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"studygraph/internal/record"
	"studygraph/internal/schema"
)

// Source hands out the raw records of one kind.
type Source interface {
	Records(ctx context.Context, kind schema.Kind) ([]record.Raw, error)
}

var extensions = []string{".csv", ".kv", ".txt", ".xml", ".yaml", ".yml"}

// Dir reads <Root>/<kind>.<ext> for every supported extension. A kind with
// no file yields no records.
type Dir struct {
	Root string
}

func (d Dir) Records(ctx context.Context, kind schema.Kind) ([]record.Raw, error) {
	var out []record.Raw
	for _, ext := range extensions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(d.Root, kind.FileStem()+ext)
		raws, err := ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, raws...)
	}
	return out, nil
}

// ReadFile splits one file into raw records according to its extension.
func ReadFile(path string) ([]record.Raw, error) {
	format, ok := record.FormatFromExt(path)
	if !ok {
		return nil, fmt.Errorf("unsupported input file %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if format == record.FormatCSV {
		return readCSV(f, filepath.Base(path))
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Split(filepath.Base(path), format, string(b))
}

// Split cuts text into per-record bodies. ref names the origin in each
// record's Ref ("organism.xml#2").
func Split(ref string, format record.Format, text string) ([]record.Raw, error) {
	var (
		bodies []string
		err    error
	)
	switch format {
	case record.FormatKeyValue:
		bodies = record.SplitKeyValueBlocks(text)
	case record.FormatMarkup:
		bodies, err = record.SplitMarkup(text)
	case record.FormatYAML:
		bodies, err = record.SplitYAML(text)
	default:
		return nil, fmt.Errorf("split %s: format %q has no text splitter", ref, format)
	}
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", ref, err)
	}
	out := make([]record.Raw, 0, len(bodies))
	for i, b := range bodies {
		out = append(out, record.Raw{Ref: fmt.Sprintf("%s#%d", ref, i+1), Format: format, Text: b})
	}
	return out, nil
}

func readCSV(r io.Reader, ref string) ([]record.Raw, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", ref, err)
	}
	var out []record.Raw
	for row := 2; ; row++ {
		vals, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", ref, row, err)
		}
		if blankRow(vals) {
			continue
		}
		out = append(out, record.Raw{
			Ref:     fmt.Sprintf("%s#%d", ref, row),
			Format:  record.FormatCSV,
			Columns: header,
			Values:  vals,
		})
	}
}

func blankRow(vals []string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Static serves records held in memory, keyed by kind.
type Static map[schema.EntityKind][]record.Raw

func (s Static) Records(_ context.Context, kind schema.Kind) ([]record.Raw, error) {
	out := make([]record.Raw, len(s[kind.Name]))
	copy(out, s[kind.Name])
	return out, nil
}
