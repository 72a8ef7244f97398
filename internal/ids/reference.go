package ids

import (
	"fmt"
	"regexp"
	"strings"

	"studygraph/internal/schema"
	"studygraph/internal/util"
)

var curie = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]*)[_:]([0-9]+)$`)

// ReferenceToken returns the token a reference value is matched on. Numeric
// values lose their zero padding; NS:0042 and NS_42 both become NS_42.
func ReferenceToken(ref schema.Reference, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if ref.StripPrefix != "" {
		v = strings.TrimPrefix(v, ref.StripPrefix)
	}
	if i := strings.IndexByte(v, '.'); i > 0 && allZero(v[i+1:]) {
		v = v[:i]
	}
	if isDigits(v) {
		return trimZeros(v), nil
	}
	if m := curie.FindStringSubmatch(v); m != nil {
		return m[1] + "_" + trimZeros(m[2]), nil
	}
	return "", fmt.Errorf("%w: %s %q is not an ontology identifier", util.ErrInvalidIdentifier, ref.Field, raw)
}

// URISuffix is the unpadded trailing digit run every matching URI ends with.
// Stores use it to narrow candidates before MatchesResourceURI.
func URISuffix(token string) string {
	_, digits := splitDigits(token)
	return trimZeros(digits)
}

// MatchesResourceURI reports whether the identifier embedded in the last
// segment of uri equals token. Digit runs compare by numeric value, so
// VO_0000042 matches 42, but 19606 never matches 9606.
func MatchesResourceURI(uri, token string) bool {
	if token == "" {
		return false
	}
	head, digits := splitDigits(strings.ReplaceAll(lastSegment(uri), ":", "_"))
	if digits == "" {
		return false
	}
	if isDigits(token) {
		return trimZeros(digits) == trimZeros(token)
	}
	tokHead, tokDigits := splitDigits(token)
	if tokDigits == "" || head != tokHead {
		return false
	}
	return trimZeros(digits) == trimZeros(tokDigits)
}

// splitDigits splits s before its trailing digit run.
func splitDigits(s string) (string, string) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	return s[:i], s[i:]
}

func trimZeros(s string) string {
	if s == "" {
		return s
	}
	if t := strings.TrimLeft(s, "0"); t != "" {
		return t
	}
	return "0"
}

func lastSegment(uri string) string {
	uri = strings.TrimSpace(uri)
	if i := strings.LastIndexAny(uri, "/#"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
