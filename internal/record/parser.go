package record

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"studygraph/internal/schema"
	"studygraph/internal/util"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Parse turns a raw record into a Record for the given kind. Fields keep
// their first value; the primary key must be present.
func Parse(raw Raw, kind schema.Kind) (Record, error) {
	var (
		rec Record
		err error
	)
	switch raw.Format {
	case FormatKeyValue:
		rec = parseKeyValue(raw.Text)
	case FormatMarkup:
		rec, err = parseMarkup(raw.Text)
	case FormatYAML:
		rec, err = parseYAML(raw.Text)
	case FormatCSV:
		rec = parseCSVRow(raw.Columns, raw.Values)
	default:
		return Record{}, fmt.Errorf("%w: %q", util.ErrUnsupportedFormat, raw.Format)
	}
	if err != nil {
		return Record{}, fmt.Errorf("parse %s record %s: %w", raw.Format, raw.Ref, err)
	}
	if !rec.Has(kind.PrimaryKey) {
		return Record{}, fmt.Errorf("%w: %s record %s has no %s", util.ErrMissingKey, kind.Name, raw.Ref, kind.PrimaryKey)
	}
	return rec, nil
}

// collector applies the shared field rules: trimmed names, first match wins,
// empty and null-marker values are treated as absent.
type collector struct {
	rec Record
}

func newCollector() *collector { return &collector{rec: New()} }

func (c *collector) add(key, value string) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "\ufeff"))
	if key == "" {
		return
	}
	value = util.SanitizeText(value)
	if isNullValue(value) {
		return
	}
	c.rec.add(key, value)
}

func isNullValue(v string) bool {
	switch strings.ToLower(v) {
	case "", "null", "none", "nan":
		return true
	default:
		return false
	}
}

func parseKeyValue(text string) Record {
	c := newCollector()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexAny(line, ":=")
		if i <= 0 {
			continue
		}
		c.add(line[:i], line[i+1:])
	}
	return c.rec
}

func parseCSVRow(columns, values []string) Record {
	c := newCollector()
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		c.add(col, values[i])
	}
	return c.rec
}

type markupFrame struct {
	name     string
	text     strings.Builder
	hasChild bool
}

// parseMarkup flattens a markup snippet. Leaf element text is stored under
// the element name; attributes under both "attr" and "element_attr".
func parseMarkup(text string) (Record, error) {
	c := newCollector()
	z := html.NewTokenizer(strings.NewReader(text))
	var stack []*markupFrame
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return c.rec, nil
			}
			return Record{}, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if n := len(stack); n > 0 {
				stack[n-1].hasChild = true
			}
			for _, a := range tok.Attr {
				c.add(a.Key, a.Val)
				c.add(tok.Data+"_"+a.Key, a.Val)
			}
			if tt == html.StartTagToken {
				stack = append(stack, &markupFrame{name: tok.Data})
			}
		case html.TextToken:
			if n := len(stack); n > 0 {
				stack[n-1].text.WriteString(z.Token().Data)
			}
		case html.EndTagToken:
			tok := z.Token()
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].name != tok.Data {
					continue
				}
				f := stack[i]
				if i == len(stack)-1 && !f.hasChild {
					c.add(f.name, f.text.String())
				}
				stack = stack[:i]
				break
			}
		}
	}
}

func parseYAML(text string) (Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return Record{}, err
	}
	c := newCollector()
	if len(doc.Content) == 0 {
		return c.rec, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return Record{}, fmt.Errorf("yaml record must be a mapping")
	}
	flattenYAML(c, "", root)
	return c.rec, nil
}

func flattenYAML(c *collector, parent string, m *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		key := m.Content[i].Value
		val := m.Content[i+1]
		if val.Kind == yaml.AliasNode && val.Alias != nil {
			val = val.Alias
		}
		if val.Kind == yaml.SequenceNode {
			if len(val.Content) == 0 {
				continue
			}
			val = val.Content[0]
		}
		switch val.Kind {
		case yaml.ScalarNode:
			s, ok := yamlScalar(val)
			if !ok {
				continue
			}
			c.add(key, s)
			if parent != "" {
				c.add(parent+"_"+key, s)
			}
		case yaml.MappingNode:
			flattenYAML(c, key, val)
		}
	}
}

// yamlScalar renders typed scalars canonically so 13 and 13.0 agree.
// Plain digit runs are kept verbatim; ontology IDs are zero padded.
func yamlScalar(n *yaml.Node) (string, bool) {
	if isDigits(n.Value) {
		return n.Value, true
	}
	switch n.Tag {
	case "!!null":
		return "", false
	case "!!int":
		if v, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			return strconv.FormatInt(v, 10), true
		}
	case "!!float":
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			if f == math.Trunc(f) && math.Abs(f) < 1e15 {
				return strconv.FormatInt(int64(f), 10), true
			}
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return strconv.FormatBool(b), true
		}
	}
	return n.Value, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
