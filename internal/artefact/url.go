package artefact

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// idRegex matches a concrete artefact or servant name.
	idRegex = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]*$`)
	// segmentRegex additionally allows `{param}` placeholders inside a name.
	segmentRegex     = regexp.MustCompile(`^(?:[a-zA-Z0-9_.-]|\{[a-zA-Z_][a-zA-Z0-9_]*\})+$`)
	placeholderRegex = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
)

// ValidateID reports whether id can name an artefact or a servant.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if id == "." || id == ".." || !idRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier %q", id)
	}
	return nil
}

// URL addresses an artefact, a servant, or one port of a servant.
type URL struct {
	Kind     Kind
	Artefact string
	Servant  string
	Port     string
}

// ParseURL parses the canonical `/kind/artefact[/servant[/port]]` form.
func ParseURL(raw string) (URL, error) {
	if raw == "" {
		return URL{}, fmt.Errorf("url cannot be empty")
	}
	if !strings.HasPrefix(raw, "/") {
		return URL{}, fmt.Errorf("url %q must start with '/'", raw)
	}

	parts := strings.Split(strings.TrimPrefix(raw, "/"), "/")
	if len(parts) < 2 || len(parts) > 4 {
		return URL{}, fmt.Errorf("url %q must have between 2 and 4 segments", raw)
	}
	for _, p := range parts {
		if p == "" {
			return URL{}, fmt.Errorf("url %q contains an empty segment", raw)
		}
	}

	kind, err := ParseKind(parts[0])
	if err != nil {
		return URL{}, fmt.Errorf("url %q: %w", raw, err)
	}
	u := URL{Kind: kind, Artefact: parts[1]}
	if len(parts) > 2 {
		u.Servant = parts[2]
	}
	if len(parts) > 3 {
		u.Port = parts[3]
	}

	for _, seg := range []string{u.Artefact, u.Servant} {
		if seg == "" {
			continue
		}
		if seg == "." || seg == ".." || !segmentRegex.MatchString(seg) {
			return URL{}, fmt.Errorf("url %q: invalid segment %q", raw, seg)
		}
	}
	if u.Port != "" && !idRegex.MatchString(u.Port) {
		return URL{}, fmt.Errorf("url %q: invalid port %q", raw, u.Port)
	}
	return u, nil
}

// MustParseURL is ParseURL for literals known to be valid.
func MustParseURL(raw string) URL {
	u, err := ParseURL(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// String serializes the URL into its canonical form.
func (u URL) String() string {
	var sb strings.Builder
	sb.WriteByte('/')
	sb.WriteString(u.Kind.String())
	sb.WriteByte('/')
	sb.WriteString(u.Artefact)
	if u.Servant != "" {
		sb.WriteByte('/')
		sb.WriteString(u.Servant)
		if u.Port != "" {
			sb.WriteByte('/')
			sb.WriteString(u.Port)
		}
	}
	return sb.String()
}

// Key drops the port and returns the servant the URL addresses.
func (u URL) Key() ServantKey {
	return ServantKey{Kind: u.Kind, Artefact: u.Artefact, Servant: u.Servant}
}

// Placeholders returns the parameter names referenced by the URL, in order of
// first appearance.
func (u URL) Placeholders() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, seg := range []string{u.Artefact, u.Servant} {
		for _, m := range placeholderRegex.FindAllStringSubmatch(seg, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			names = append(names, m[1])
		}
	}
	return names
}

// Substitute fills `{name}` placeholders from params. A placeholder with no
// value is an error, as is a result that is not a valid identifier.
func (u URL) Substitute(params map[string]string) (URL, error) {
	out := u
	var missing []string
	replace := func(seg string) string {
		return placeholderRegex.ReplaceAllStringFunc(seg, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := params[name]
			if !ok {
				missing = append(missing, name)
				return m
			}
			return v
		})
	}
	out.Artefact = replace(u.Artefact)
	out.Servant = replace(u.Servant)
	if len(missing) > 0 {
		return URL{}, fmt.Errorf("url %s: no value for parameter(s) %s", u, strings.Join(missing, ", "))
	}
	if err := ValidateID(out.Artefact); err != nil {
		return URL{}, fmt.Errorf("url %s: artefact: %w", u, err)
	}
	if out.Servant != "" {
		if err := ValidateID(out.Servant); err != nil {
			return URL{}, fmt.Errorf("url %s: servant: %w", u, err)
		}
	}
	return out, nil
}

// MarshalText and UnmarshalText let URLs travel as strings in documents.
func (u URL) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *URL) UnmarshalText(text []byte) error {
	parsed, err := ParseURL(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
