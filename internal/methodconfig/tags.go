// Package methodconfig compiles configuration tags into per-method HTTP
// parameter plans.
package methodconfig

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/i2y/protoswag/internal/domain"
)

const (
	tagFlat     = "flat"
	tagBlob     = "blob"
	tagSecurity = "security="
	tagPath     = "path="
)

var verbs = map[string]string{
	"get":    http.MethodGet,
	"put":    http.MethodPut,
	"post":   http.MethodPost,
	"delete": http.MethodDelete,
}

// ParseExpression parses "[method:]tag[,tag]*". Expressions without a
// method prefix apply to the wildcard entry.
func ParseExpression(expr string) domain.ConfigEntry {
	method, tags := domain.Wildcard, expr
	if name, rest, ok := strings.Cut(expr, ":"); ok && !strings.ContainsAny(name, ",=?&/") {
		if name = strings.TrimSpace(name); name != "" {
			method = name
		}
		tags = rest
	}
	return domain.ConfigEntry{Method: method, Tags: SplitTags(tags), Source: expr}
}

// SplitTags splits a comma separated tag list, dropping empty tags.
func SplitTags(list string) []string {
	var tags []string
	for _, tag := range strings.Split(list, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// methodConfig is the working state of one configuration entry.
type methodConfig struct {
	httpMethod string
	location   domain.ParamLocation
	flatten    bool
	params     []domain.ParamSpec
	security   *string
	path       string
}

func defaultConfig() methodConfig {
	return methodConfig{httpMethod: http.MethodPost}
}

func (c methodConfig) clone() methodConfig {
	c.params = domain.CloneParams(c.params)
	if c.security != nil {
		s := *c.security
		c.security = &s
	}
	return c
}

// apply returns a copy of base with the entry's tags applied. Verb tags are
// applied first, the remaining tags in order.
func apply(base methodConfig, entry domain.ConfigEntry) (methodConfig, error) {
	cfg := base.clone()
	ordered := make([]string, 0, len(entry.Tags))
	for _, tag := range entry.Tags {
		if _, ok := verbs[strings.ToLower(tag)]; ok {
			ordered = append(ordered, tag)
		}
	}
	for _, tag := range entry.Tags {
		if _, ok := verbs[strings.ToLower(tag)]; !ok {
			ordered = append(ordered, tag)
		}
	}

	for _, tag := range ordered {
		fail := func(reason string, err error) error {
			return &domain.ConfigError{Method: entry.Method, Tag: tag, Reason: reason, Err: err}
		}
		lower := strings.ToLower(tag)
		if verb, ok := verbs[lower]; ok {
			cfg.httpMethod = verb
			continue
		}
		if loc, ok := domain.ParseParamLocation(lower); ok {
			if loc == domain.LocationBody && cfg.httpMethod == http.MethodGet {
				return cfg, fail("cannot use `body` tag with HTTP GET", nil)
			}
			cfg.location = loc
			continue
		}
		switch {
		case lower == tagFlat:
			cfg.flatten = true
		case lower == tagBlob:
			cfg.flatten = false
		case strings.HasPrefix(tag, tagSecurity):
			s := tag[len(tagSecurity):]
			cfg.security = &s
		case strings.HasPrefix(tag, tagPath):
			if entry.Method == domain.Wildcard {
				return cfg, fail("refusing to apply a path to all methods", nil)
			}
			path := tag[len(tagPath):]
			if !strings.HasPrefix(path, "/") {
				return cfg, fail("path must start with '/'", nil)
			}
			cfg.path = path
		case strings.Contains(tag, "?"):
			spec, err := parseSpecifier(tag, cfg.httpMethod)
			if err != nil {
				return cfg, fail("malformed parameter specifier", err)
			}
			for _, p := range cfg.params {
				if p.Name == spec.Name {
					return cfg, fail(fmt.Sprintf("duplicate use of parameter name '%s' in the same method", spec.Name), nil)
				}
			}
			cfg.params = append(cfg.params, spec)
		default:
			return cfg, fail("did not understand tag", nil)
		}
	}
	return cfg, nil
}

// parseSpecifier parses "<field>?name=<n>&in=<loc>&format=<fmt>[&style=<s>][&explode=<b>][&default=<v>]".
func parseSpecifier(tag, httpMethod string) (domain.ParamSpec, error) {
	field, query, _ := strings.Cut(tag, "?")
	field = strings.TrimSpace(field)
	if field == "" {
		return domain.ParamSpec{}, fmt.Errorf("missing field path before '?'")
	}

	kv := map[string]string{}
	for _, pair := range strings.Split(query, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return domain.ParamSpec{}, fmt.Errorf("expected key=value, got '%s'", pair)
		}
		switch key {
		case "name", "in", "format", "style", "explode", "default":
			kv[key] = value
		default:
			return domain.ParamSpec{}, fmt.Errorf("unknown key '%s'", key)
		}
	}

	in, ok := kv["in"]
	if !ok {
		return domain.ParamSpec{}, fmt.Errorf("no value for 'in' key")
	}
	loc, ok := domain.ParseParamLocation(strings.ToLower(in))
	if !ok {
		return domain.ParamSpec{}, fmt.Errorf("unknown location '%s'", in)
	}

	var spec domain.ParamSpec
	if loc == domain.LocationBody {
		if httpMethod == http.MethodGet {
			return domain.ParamSpec{}, fmt.Errorf("cannot use `in=body` with HTTP GET")
		}
		spec = domain.ParamSpec{Field: domain.WholeRequest, Name: "body", In: loc, Format: domain.FormatBinary}
	} else {
		name, ok := kv["name"]
		if !ok || name == "" {
			return domain.ParamSpec{}, fmt.Errorf("no value for 'name' key")
		}
		format := domain.FormatString
		if f, ok := kv["format"]; ok {
			if format, ok = domain.ParseParamFormat(strings.ToLower(f)); !ok {
				return domain.ParamSpec{}, fmt.Errorf("unknown format '%s'", f)
			}
		}
		spec = domain.ParamSpec{Field: field, Name: name, In: loc, Format: format}
	}

	if style, ok := kv["style"]; ok {
		spec.Style = strings.ToLower(style)
	}
	if explode, ok := kv["explode"]; ok {
		switch strings.ToLower(explode) {
		case "true":
			spec.Explode = ptr(true)
		case "false":
			spec.Explode = ptr(false)
		default:
			return domain.ParamSpec{}, fmt.Errorf("explode must be true or false, got '%s'", explode)
		}
	}
	if def, ok := kv["default"]; ok {
		spec.Default = &def
	}
	if err := ValidateStyle(spec); err != nil {
		return domain.ParamSpec{}, err
	}
	return spec, nil
}

// ValidateStyle checks the style and explode settings of a parameter against
// its location.
func ValidateStyle(spec domain.ParamSpec) error {
	if spec.Style != "" {
		var allowed []string
		switch spec.In {
		case domain.LocationPath:
			allowed = []string{domain.StyleMatrix, domain.StyleLabel, domain.StyleSimple}
		case domain.LocationQuery:
			allowed = []string{domain.StyleForm}
		case domain.LocationHeader:
			allowed = []string{domain.StyleSimple}
		}
		ok := false
		for _, s := range allowed {
			ok = ok || s == spec.Style
		}
		if !ok {
			return fmt.Errorf("style '%s' is not allowed for in=%s (allowed: %s)", spec.Style, spec.In, strings.Join(allowed, ", "))
		}
	}
	if spec.Explode != nil && *spec.Explode && spec.In != domain.LocationQuery && spec.In != domain.LocationPath {
		return fmt.Errorf("explode=true requires in=query or in=path, got in=%s", spec.In)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
