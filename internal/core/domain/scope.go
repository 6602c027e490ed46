package domain

import (
	"errors"
	"net/url"
	"sort"
	"strings"
)

// DirectiveType distinguishes allow rules from deny rules.
type DirectiveType string

const (
	DirectiveAllow DirectiveType = "allow"
	DirectiveDeny  DirectiveType = "deny"
)

// ErrMalformedDirective indicates a directive string that cannot be decoded.
// A claim containing any malformed entry must be rejected as a whole.
var ErrMalformedDirective = errors.New("malformed scope directive")

// ScopeTemplate is a declarative allow/deny rule attached to a role. A
// parameter template wrapped in braces ("{userId}") is a placeholder resolved
// against a binding map at expansion time; any other value is a literal.
type ScopeTemplate struct {
	Type       DirectiveType     `json:"type"`
	Permission string            `json:"permission"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Equal reports structural equality of two templates.
func (t ScopeTemplate) Equal(other ScopeTemplate) bool {
	if t.Type != other.Type || t.Permission != other.Permission {
		return false
	}
	if len(t.Parameters) != len(other.Parameters) {
		return false
	}
	for name, value := range t.Parameters {
		if otherValue, ok := other.Parameters[name]; !ok || otherValue != value {
			return false
		}
	}
	return true
}

// PlaceholderName extracts the binding key from a placeholder template value.
// The second return is false for literal values.
func PlaceholderName(value string) (string, bool) {
	if len(value) < 3 || !strings.HasPrefix(value, "{") || !strings.HasSuffix(value, "}") {
		return "", false
	}
	name := value[1 : len(value)-1]
	if strings.ContainsAny(name, "{}") {
		return "", false
	}
	return name, true
}

// Expand resolves the template against the supplied parameter bindings.
// Literals pass through verbatim. A placeholder missing from the bindings
// yields a nil concrete value rather than an error; consumers must treat an
// unresolved parameter as unsatisfiable.
func (t ScopeTemplate) Expand(values map[string]string) ScopeDirective {
	directive := ScopeDirective{Type: t.Type, Permission: t.Permission}
	if len(t.Parameters) == 0 {
		return directive
	}

	directive.Parameters = make(map[string]*string, len(t.Parameters))
	for name, template := range t.Parameters {
		if key, ok := PlaceholderName(template); ok {
			if resolved, found := values[key]; found {
				value := resolved
				directive.Parameters[name] = &value
			} else {
				directive.Parameters[name] = nil
			}
			continue
		}
		literal := template
		directive.Parameters[name] = &literal
	}
	return directive
}

// ScopeDirective is the fully resolved form of a scope template. It is only
// ever produced via expansion; a nil parameter value records a placeholder
// that had no binding.
type ScopeDirective struct {
	Type       DirectiveType
	Permission string
	Parameters map[string]*string
}

// Equal reports whether path, type, and concrete parameter map all match.
func (d ScopeDirective) Equal(other ScopeDirective) bool {
	return d.String() == other.String()
}

// IsDeny reports whether the directive is an explicit denial.
func (d ScopeDirective) IsDeny() bool {
	return d.Type == DirectiveDeny
}

// String renders the canonical encoded form used for ordering, cache keys,
// and token claims: a "+" or "-" sign, the permission path, and an optional
// query-style parameter list sorted by name. Unresolved parameters render as
// a bare key with no "=".
//
//	+api:portfolio:accounts:list?userId=user-123
//	-api:favorites:write
func (d ScopeDirective) String() string {
	var b strings.Builder
	if d.Type == DirectiveDeny {
		b.WriteByte('-')
	} else {
		b.WriteByte('+')
	}
	b.WriteString(d.Permission)

	if len(d.Parameters) > 0 {
		names := make([]string, 0, len(d.Parameters))
		for name := range d.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteByte('?')
		for i, name := range names {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			if value := d.Parameters[name]; value != nil {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(*value))
			}
		}
	}
	return b.String()
}

// subjectKey identifies the (permission, parameters) pair a directive speaks
// about, independent of allow/deny. Deny precedence is computed per key.
func (d ScopeDirective) subjectKey() string {
	return d.String()[1:]
}

// ParseDirective decodes the canonical string form back into a directive.
// The parse is strict: an unknown sign, empty path, duplicate parameter name,
// or invalid escape fails with ErrMalformedDirective.
func ParseDirective(encoded string) (ScopeDirective, error) {
	if encoded == "" {
		return ScopeDirective{}, ErrMalformedDirective
	}

	var directive ScopeDirective
	switch encoded[0] {
	case '+':
		directive.Type = DirectiveAllow
	case '-':
		directive.Type = DirectiveDeny
	default:
		return ScopeDirective{}, ErrMalformedDirective
	}

	rest := encoded[1:]
	path := rest
	var query string
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		path = rest[:idx]
		query = rest[idx+1:]
		if query == "" {
			return ScopeDirective{}, ErrMalformedDirective
		}
	}
	if path == "" || strings.ContainsAny(path, "?&= ") {
		return ScopeDirective{}, ErrMalformedDirective
	}
	directive.Permission = path

	if query != "" {
		directive.Parameters = make(map[string]*string)
		for _, pair := range strings.Split(query, "&") {
			if pair == "" {
				return ScopeDirective{}, ErrMalformedDirective
			}
			rawName, rawValue, hasValue := strings.Cut(pair, "=")
			name, err := url.QueryUnescape(rawName)
			if err != nil || name == "" {
				return ScopeDirective{}, ErrMalformedDirective
			}
			if _, dup := directive.Parameters[name]; dup {
				return ScopeDirective{}, ErrMalformedDirective
			}
			if !hasValue {
				directive.Parameters[name] = nil
				continue
			}
			value, err := url.QueryUnescape(rawValue)
			if err != nil {
				return ScopeDirective{}, ErrMalformedDirective
			}
			directive.Parameters[name] = &value
		}
	}
	return directive, nil
}

// ExpandToDirectives expands every template against the shared binding map,
// collapses structurally identical results, and orders the output by the
// canonical string form using ordinal comparison. The result is reproducible
// byte-for-byte for identical inputs, which audit logging and cache keys
// rely on.
func ExpandToDirectives(templates []ScopeTemplate, values map[string]string) []ScopeDirective {
	if len(templates) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(templates))
	directives := make([]ScopeDirective, 0, len(templates))
	for _, template := range templates {
		directive := template.Expand(values)
		key := directive.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		directives = append(directives, directive)
	}

	sort.Slice(directives, func(i, j int) bool {
		return directives[i].String() < directives[j].String()
	})
	return directives
}

// EncodeDirectives renders the directive set into its claim representation.
func EncodeDirectives(directives []ScopeDirective) []string {
	if len(directives) == 0 {
		return nil
	}
	encoded := make([]string, 0, len(directives))
	for _, directive := range directives {
		encoded = append(encoded, directive.String())
	}
	return encoded
}

// DecodeDirectives parses a claim back into directives. Any malformed entry
// rejects the whole set so a truncated claim can never partially grant.
func DecodeDirectives(encoded []string) ([]ScopeDirective, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	directives := make([]ScopeDirective, 0, len(encoded))
	for _, entry := range encoded {
		directive, err := ParseDirective(entry)
		if err != nil {
			return nil, err
		}
		directives = append(directives, directive)
	}
	return directives, nil
}

// Evaluate answers whether the directive set permits the given permission for
// the supplied request parameters. Coverage follows Catalog.Covers. Every
// directive parameter must equal the request's binding for that name; an
// unresolved (nil) parameter never satisfies an allow but acts as a wildcard
// on a deny. A deny whose concrete parameters mismatch the request does not
// fire. Any applicable deny wins; without a satisfied allow the default is
// deny.
func (c *Catalog) Evaluate(directives []ScopeDirective, permissionPath string, params map[string]string) bool {
	target, ok := c.Find(permissionPath)
	if !ok {
		return false
	}

	allowed := false
	for _, directive := range directives {
		if !c.Covers(directive.Permission, target) {
			continue
		}
		if directive.IsDeny() {
			if parametersCompatible(directive.Parameters, params) {
				return false
			}
			continue
		}
		if parametersSatisfied(directive.Parameters, params) {
			allowed = true
		}
	}
	return allowed
}

func parametersSatisfied(required map[string]*string, provided map[string]string) bool {
	for name, value := range required {
		if value == nil {
			return false
		}
		if provided[name] != *value {
			return false
		}
	}
	return true
}

// parametersCompatible reports whether every concrete parameter equals the
// request's binding; unresolved values match anything.
func parametersCompatible(required map[string]*string, provided map[string]string) bool {
	for name, value := range required {
		if value == nil {
			continue
		}
		if provided[name] != *value {
			return false
		}
	}
	return true
}
