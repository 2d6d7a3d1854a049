package resthttp

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
)

// route is the serving view of one plan.
type route struct {
	plan    domain.MethodPlan
	hasBody bool
	// lists marks parameters bound to repeated fields, whose values may
	// arrive as one delimited string.
	lists map[string]bool
}

func newRoute(plan domain.MethodPlan, method domain.MethodSchema, reflector *schema.Reflector) *route {
	rt := &route{plan: plan, lists: map[string]bool{}}
	for _, p := range plan.Params {
		if p.In == domain.LocationBody {
			rt.hasBody = true
			continue
		}
		if p.IsWholeRequest() {
			continue
		}
		if fd, ok := reflector.FindField(method.Input, p.Field); ok && fd.Kind == domain.KindArray {
			rt.lists[p.Name] = true
		}
	}
	return rt
}

// paramSource extracts parameter values from one HTTP request following the
// style and explode settings of each parameter.
type paramSource struct {
	route   *route
	request *http.Request
	query   url.Values
	body    []byte
}

func (s *paramSource) Lookup(spec domain.ParamSpec) ([]string, bool) {
	list := s.route.lists[spec.Name]
	switch spec.In {
	case domain.LocationBody:
		return []string{string(s.body)}, true

	case domain.LocationQuery:
		values, ok := s.query[spec.Name]
		if !ok {
			return nil, false
		}
		if list && !spec.EffectiveExplode() {
			return splitAll(values, ","), true
		}
		return values, true

	case domain.LocationHeader:
		values := s.request.Header.Values(spec.Name)
		if len(values) == 0 {
			return nil, false
		}
		if list {
			return splitAll(values, ","), true
		}
		return values, true

	case domain.LocationPath:
		raw := s.request.PathValue(spec.Name)
		if raw == "" {
			return nil, false
		}
		return pathValues(raw, spec, list), true
	}
	return nil, false
}

// pathValues undoes the simple, label and matrix serializations of a path
// segment. Values without the expected prefix are taken literally.
func pathValues(raw string, spec domain.ParamSpec, list bool) []string {
	sep := ","
	explode := spec.EffectiveExplode()
	switch spec.EffectiveStyle() {
	case domain.StyleLabel:
		raw = strings.TrimPrefix(raw, ".")
		if explode {
			sep = "."
		}
	case domain.StyleMatrix:
		prefix := ";" + spec.Name + "="
		if explode && list {
			var values []string
			for _, part := range strings.Split(raw, ";") {
				if v, ok := strings.CutPrefix(part, spec.Name+"="); ok {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				return values
			}
		}
		raw = strings.TrimPrefix(raw, prefix)
	}
	if !list {
		return []string{raw}
	}
	return strings.Split(raw, sep)
}

func splitAll(values []string, sep string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, sep) {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}
