package ontology

import (
	"strings"

	"studygraph/internal/storage"
)

var (
	definitionProps = []string{"definition", "IAO_0000115"}
	labelProps      = []string{"editor_preferred_label", "IAO_0000111", "label", "rdfs__label"}
	synonymProps    = []string{"alternative_term", "IAO_0000118"}
)

// CopiedProperties is the property set written onto a node resolved to res.
// Values the resource lacks are nil so a rerun clears stale copies.
func CopiedProperties(prefix string, res storage.Resource) map[string]any {
	return map[string]any{
		prefix + "representation_uri": res.URI,
		prefix + "definition":         firstProp(res.Props, definitionProps),
		prefix + "preferred_label":    firstProp(res.Props, labelProps),
		prefix + "synonyms":           firstProp(res.Props, synonymProps),
	}
}

func firstProp(props map[string]any, keys []string) any {
	for _, k := range keys {
		v, ok := props[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
		case []any:
			if len(t) == 0 {
				continue
			}
		case []string:
			if len(t) == 0 {
				continue
			}
		}
		return v
	}
	return nil
}
