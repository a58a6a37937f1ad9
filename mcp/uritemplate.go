package mcp

import (
	"fmt"
	"strings"
)

// uriTemplate is a parsed resource URI of the form scheme://seg/seg/...
// where each path segment is either a literal or a {variable} placeholder
// spanning the whole segment. A template with no placeholders matches only
// its exact literal form.
type uriTemplate struct {
	raw      string
	scheme   string
	segments []uriSegment
	varCount int
}

type uriSegment struct {
	literal string
	varName string
}

func parseURITemplate(raw string) (*uriTemplate, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("uri template %q: missing scheme", raw)
	}
	if rest == "" {
		return nil, fmt.Errorf("uri template %q: empty path", raw)
	}

	t := &uriTemplate{raw: raw, scheme: scheme}
	for _, part := range strings.Split(rest, "/") {
		if part == "" {
			return nil, fmt.Errorf("uri template %q: empty path segment", raw)
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" || strings.ContainsAny(name, "{}") {
				return nil, fmt.Errorf("uri template %q: bad variable segment %q", raw, part)
			}
			t.segments = append(t.segments, uriSegment{varName: name})
			t.varCount++
			continue
		}
		if strings.ContainsAny(part, "{}") {
			return nil, fmt.Errorf("uri template %q: variable must span a whole segment, got %q", raw, part)
		}
		t.segments = append(t.segments, uriSegment{literal: part})
	}
	return t, nil
}

// isLiteral reports whether the template has no variables.
func (t *uriTemplate) isLiteral() bool {
	return t.varCount == 0
}

// match binds a concrete URI against the template. Literal segments compare
// exactly; variable segments capture their value. Returns nil, false when
// the URI does not fit.
func (t *uriTemplate) match(uri string) (map[string]string, bool) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme != t.scheme {
		return nil, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != len(t.segments) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range t.segments {
		if seg.varName != "" {
			if parts[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, t.varCount)
			}
			params[seg.varName] = parts[i]
			continue
		}
		if parts[i] != seg.literal {
			return nil, false
		}
	}
	if params == nil {
		params = map[string]string{}
	}
	return params, true
}
