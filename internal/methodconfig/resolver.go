package methodconfig

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
)

var (
	identifier  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	placeholder = regexp.MustCompile(`\{([^{}]*)\}`)
)

// Resolver turns ordered configuration entries into immutable method plans.
type Resolver struct {
	reflector *schema.Reflector
	logger    *slog.Logger
}

// NewResolver creates a Resolver which inspects request types with reflector.
func NewResolver(reflector *schema.Reflector, logger *slog.Logger) *Resolver {
	return &Resolver{
		reflector: reflector,
		logger:    logger.With("component", "method_config"),
	}
}

// Resolve applies entries strictly in order and returns one plan per method,
// in the order of methods.
//
// Every entry starts from a copy of the wildcard configuration as it stands
// when the entry is reached. A wildcard entry changes that baseline for the
// entries after it only. Methods without an entry of their own get the final
// wildcard configuration.
func (r *Resolver) Resolve(methods []domain.MethodSchema, entries []domain.ConfigEntry) ([]domain.MethodPlan, error) {
	wildcard := defaultConfig()
	configs := make(map[string]methodConfig)
	for _, entry := range entries {
		cfg, err := apply(wildcard, entry)
		if err != nil {
			return nil, err
		}
		if entry.Method == domain.Wildcard {
			wildcard = cfg
			continue
		}
		if _, ok := configs[entry.Method]; ok {
			r.logger.Warn("Overwriting configuration for method",
				slog.String("method", entry.Method), slog.String("source", entry.Source))
		}
		configs[entry.Method] = cfg
	}

	known := make(map[string]bool, len(methods))
	for _, m := range methods {
		known[m.Name] = true
	}
	for name := range configs {
		if !known[name] {
			return nil, &domain.ConfigError{Method: name, Reason: "no such method in the service"}
		}
	}

	plans := make([]domain.MethodPlan, 0, len(methods))
	for _, m := range methods {
		cfg, ok := configs[m.Name]
		if !ok {
			cfg = wildcard.clone()
		}
		plan, err := r.finalize(m, cfg)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Validate runs the checks Resolve applies to its own plans against plans
// built elsewhere, such as plans recovered from an existing document.
func (r *Resolver) Validate(methods []domain.MethodSchema, plans []domain.MethodPlan) error {
	byName := make(map[string]domain.MethodSchema, len(methods))
	for _, m := range methods {
		byName[m.Name] = m
	}
	for _, plan := range plans {
		m, ok := byName[plan.Method]
		if !ok {
			return &domain.ConfigError{Method: plan.Method, Reason: "no such method in the service"}
		}
		if err := r.checkParams(m, plan); err != nil {
			return err
		}
		if err := checkPath(plan); err != nil {
			return &domain.ConfigError{Method: m.Name, Reason: err.Error()}
		}
	}
	return nil
}

func (r *Resolver) finalize(m domain.MethodSchema, cfg methodConfig) (domain.MethodPlan, error) {
	log := r.logger.With(slog.String("method", m.Name))

	plan := domain.MethodPlan{
		Method:     m.Name,
		HTTPMethod: cfg.httpMethod,
		Path:       cfg.path,
		Security:   cfg.security,
	}
	explicitPath := cfg.path != ""
	if !explicitPath {
		log.Debug("Auto-generating path")
		plan.Path = "/" + m.Name
	}

	if len(cfg.params) > 0 {
		plan.Params = cfg.params
	} else {
		params, err := r.defaultParams(m, cfg)
		if err != nil {
			return domain.MethodPlan{}, err
		}
		plan.Params = params
	}

	if err := r.checkParams(m, plan); err != nil {
		return domain.MethodPlan{}, err
	}

	if !explicitPath {
		for _, p := range plan.Params {
			if p.In == domain.LocationPath && !strings.Contains(plan.Path, "{"+p.Name+"}") {
				log.Debug("Appending placeholder to path", slog.String("param", p.Name))
				plan.Path += "/{" + p.Name + "}"
			}
		}
	}
	if err := checkPath(plan); err != nil {
		return domain.MethodPlan{}, &domain.ConfigError{Method: m.Name, Reason: err.Error()}
	}

	if plan.Security != nil && *plan.Security == "" {
		log.Warn("Method has an explicit empty security setting")
	}
	return plan.Clone(), nil
}

// defaultParams derives the parameters of a method configured without
// specifiers.
func (r *Resolver) defaultParams(m domain.MethodSchema, cfg methodConfig) ([]domain.ParamSpec, error) {
	loc := cfg.location
	if loc == domain.LocationBody {
		return []domain.ParamSpec{wholeBody()}, nil
	}

	if cfg.flatten {
		if reason := r.reflector.CheckConstructable(m.Input, ""); reason != nil {
			reason.Method = m.Name
			return nil, &domain.ConfigError{Method: m.Name, Tag: tagFlat, Reason: "request cannot be flattened", Err: reason}
		}
		if loc == "" {
			loc = domain.LocationQuery
		}
		var params []domain.ParamSpec
		for name, fd := range r.reflector.Fields(m.Input, true) {
			if !leaf(fd) {
				continue
			}
			params = append(params, domain.ParamSpec{
				Field:  name,
				Name:   strings.ReplaceAll(name, ".", "__"),
				In:     loc,
				Format: domain.FormatString,
			})
		}
		return params, nil
	}

	if loc == "" {
		if cfg.httpMethod != http.MethodGet {
			return []domain.ParamSpec{wholeBody()}, nil
		}
		loc = domain.LocationQuery
	}
	return []domain.ParamSpec{{Field: domain.WholeRequest, Name: "requestBody", In: loc, Format: domain.FormatBase64URL}}, nil
}

func wholeBody() domain.ParamSpec {
	return domain.ParamSpec{Field: domain.WholeRequest, Name: "body", In: domain.LocationBody, Format: domain.FormatBinary}
}

// leaf reports whether a field is addressed by exactly one flat parameter.
func leaf(fd domain.FieldDescriptor) bool {
	switch fd.Kind {
	case domain.KindScalar, domain.KindEnum:
		return true
	case domain.KindArray:
		return fd.ElemKind == domain.KindScalar || fd.ElemKind == domain.KindEnum
	}
	return false
}

func (r *Resolver) checkParams(m domain.MethodSchema, plan domain.MethodPlan) error {
	fail := func(format string, args ...any) error {
		return &domain.ConfigError{Method: m.Name, Reason: fmt.Sprintf(format, args...)}
	}

	names := make(map[string]bool, len(plan.Params))
	checkedType := false
	for _, p := range plan.Params {
		if names[p.Name] {
			return fail("duplicate use of parameter name '%s'", p.Name)
		}
		names[p.Name] = true

		if err := ValidateStyle(p); err != nil {
			return &domain.ConfigError{Method: m.Name, Reason: "invalid parameter '" + p.Name + "'", Err: err}
		}
		if p.In == domain.LocationBody && plan.HTTPMethod == http.MethodGet {
			return fail("cannot pass the request in the body of an HTTP GET")
		}
		if p.IsWholeRequest() {
			if len(plan.Params) > 1 {
				return fail("parameter '%s' carries the whole request and must be the only parameter", p.Name)
			}
			continue
		}
		if p.In == domain.LocationBody {
			return fail("only the whole request can travel in the body")
		}

		fd, ok := r.reflector.FindField(m.Input, p.Field)
		if !ok {
			return fail("could not find field '%s' in %s", p.Field, m.Input.FullName())
		}
		if !leaf(fd) {
			return fail("field '%s' is a %s and cannot be set from a single parameter", p.Field, fd.Kind)
		}
		if !checkedType {
			if reason := r.reflector.CheckConstructable(m.Input, ""); reason != nil {
				reason.Method = m.Name
				return &domain.ConfigError{Method: m.Name, Reason: "request cannot be built from parameters", Err: reason}
			}
			checkedType = true
		}
	}
	return nil
}

// checkPath requires every path parameter to be an identifier with a
// placeholder in the path, and every placeholder to fill a whole path segment
// and match a path parameter.
func checkPath(plan domain.MethodPlan) error {
	pathParams := make(map[string]bool)
	for _, p := range plan.Params {
		if p.In != domain.LocationPath {
			continue
		}
		if !identifier.MatchString(p.Name) {
			return fmt.Errorf("path parameter name '%s' is not an identifier", p.Name)
		}
		if !strings.Contains(plan.Path, "{"+p.Name+"}") {
			return fmt.Errorf("path '%s' has no placeholder for path parameter '%s'", plan.Path, p.Name)
		}
		pathParams[p.Name] = true
	}
	for _, segment := range strings.Split(plan.Path, "/") {
		matches := placeholder.FindAllStringSubmatch(segment, -1)
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 || matches[0][0] != segment {
			return fmt.Errorf("placeholder in path segment '%s' must span the whole segment", segment)
		}
		if name := matches[0][1]; !pathParams[name] {
			return fmt.Errorf("path placeholder '{%s}' has no matching path parameter", name)
		}
	}
	return nil
}
