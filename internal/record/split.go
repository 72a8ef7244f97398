package record

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// SplitKeyValueBlocks splits blank-line separated key/value blocks.
// Blocks holding only comments are dropped.
func SplitKeyValueBlocks(text string) []string {
	var (
		out     []string
		cur     []string
		hasData bool
	)
	flush := func() {
		if hasData {
			out = append(out, strings.Join(cur, "\n"))
		}
		cur, hasData = nil, false
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		cur = append(cur, line)
		if !strings.HasPrefix(trimmed, "#") {
			hasData = true
		}
	}
	flush()
	return out
}

type markupSegment struct {
	raw      string
	inner    string
	hasChild bool
}

// SplitMarkup returns one snippet per top-level element. A single wrapper
// element whose children are all records (<organisms><organism>..</organism></organisms>)
// is unwrapped.
func SplitMarkup(text string) ([]string, error) {
	top, err := splitMarkupSegments(text)
	if err != nil {
		return nil, err
	}
	if len(top) == 1 && top[0].hasChild {
		inner, err := splitMarkupSegments(top[0].inner)
		if err != nil {
			return nil, err
		}
		allRecords := len(inner) > 0
		for _, s := range inner {
			if !s.hasChild {
				allRecords = false
				break
			}
		}
		if allRecords {
			return segmentsRaw(inner), nil
		}
	}
	return segmentsRaw(top), nil
}

func segmentsRaw(segs []markupSegment) []string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, s.raw)
	}
	return out
}

func splitMarkupSegments(text string) ([]markupSegment, error) {
	z := html.NewTokenizer(strings.NewReader(text))
	var (
		out        []markupSegment
		buf        bytes.Buffer
		depth      int
		innerStart int
		hasChild   bool
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				if depth > 0 {
					out = append(out, markupSegment{raw: buf.String(), inner: buf.String()[innerStart:], hasChild: hasChild})
				}
				return out, nil
			}
			return nil, z.Err()
		case html.StartTagToken:
			if depth == 0 {
				buf.Reset()
				hasChild = false
			} else if depth == 1 {
				hasChild = true
			}
			buf.Write(z.Raw())
			if depth == 0 {
				innerStart = buf.Len()
			}
			depth++
		case html.SelfClosingTagToken:
			if depth == 0 {
				out = append(out, markupSegment{raw: string(z.Raw())})
				continue
			}
			if depth == 1 {
				hasChild = true
			}
			buf.Write(z.Raw())
		case html.EndTagToken:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				inner := buf.String()[innerStart:]
				buf.Write(z.Raw())
				out = append(out, markupSegment{raw: buf.String(), inner: inner, hasChild: hasChild})
				continue
			}
			buf.Write(z.Raw())
		default:
			if depth > 0 {
				buf.Write(z.Raw())
			}
		}
	}
}

// SplitYAML returns one YAML document per record. Top-level sequences are
// expanded into their items.
func SplitYAML(text string) ([]string, error) {
	dec := yaml.NewDecoder(strings.NewReader(text))
	var out []string
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		if len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		items := []*yaml.Node{root}
		if root.Kind == yaml.SequenceNode {
			items = root.Content
		}
		for _, item := range items {
			b, err := yaml.Marshal(item)
			if err != nil {
				return nil, err
			}
			out = append(out, string(b))
		}
	}
}
