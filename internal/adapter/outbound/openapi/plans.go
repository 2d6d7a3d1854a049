package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/protoswag/internal/domain"
)

// PlansFromDocument recovers method plans from a document produced by
// DocumentGenerator, so a server can start from a pre-generated document
// without resolving tags again. Plans are sorted by method name.
func PlansFromDocument(doc *openapi3.T) ([]domain.MethodPlan, error) {
	if doc.Paths == nil {
		return nil, nil
	}
	var plans []domain.MethodPlan
	for path, item := range doc.Paths.Map() {
		for httpMethod, op := range item.Operations() {
			plan, err := planFromOperation(path, httpMethod, op)
			if err != nil {
				return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrInvalidDocument, httpMethod, path, err)
			}
			plans = append(plans, plan)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Method < plans[j].Method })
	return plans, nil
}

func planFromOperation(path, httpMethod string, op *openapi3.Operation) (domain.MethodPlan, error) {
	if op.OperationID == "" {
		return domain.MethodPlan{}, fmt.Errorf("operation has no operationId")
	}
	plan := domain.MethodPlan{
		Method:     op.OperationID,
		HTTPMethod: strings.ToUpper(httpMethod),
		Path:       path,
	}

	for _, ref := range op.Parameters {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		loc, ok := domain.ParseParamLocation(p.In)
		if !ok {
			return domain.MethodPlan{}, fmt.Errorf("parameter %s: unsupported location %q", p.Name, p.In)
		}
		field, ok := requestPart(p.Extensions)
		if !ok {
			return domain.MethodPlan{}, fmt.Errorf("parameter %s has no %s extension", p.Name, domain.RequestPartExtension)
		}
		spec := domain.ParamSpec{
			Field:   field,
			Name:    p.Name,
			In:      loc,
			Format:  domain.FormatString,
			Style:   p.Style,
			Explode: p.Explode,
		}
		if p.Schema != nil && p.Schema.Value != nil {
			s := p.Schema.Value
			if s.Type.Is(openapi3.TypeArray) && s.Items != nil && s.Items.Value != nil {
				s = s.Items.Value
			}
			if format, ok := domain.ParseParamFormat(s.Format); ok {
				spec.Format = format
			}
			if def, ok := defaultString(p.Schema.Value.Default); ok {
				spec.Default = &def
			}
		}
		plan.Params = append(plan.Params, spec)
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if op.RequestBody.Value.Content.Get(domain.ContentType) == nil {
			return domain.MethodPlan{}, fmt.Errorf("request body must be %s", domain.ContentType)
		}
		plan.Params = append(plan.Params, domain.ParamSpec{
			Field:  domain.WholeRequest,
			Name:   "body",
			In:     domain.LocationBody,
			Format: domain.FormatBinary,
		})
	}

	if op.Security != nil {
		security := ""
		if reqs := *op.Security; len(reqs) > 0 {
			for name := range reqs[0] {
				security = name
				break
			}
		}
		plan.Security = &security
	}
	return plan, nil
}

func requestPart(extensions map[string]any) (string, bool) {
	switch v := extensions[domain.RequestPartExtension].(type) {
	case string:
		return v, v != ""
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, s != ""
	}
	return "", false
}

func defaultString(v any) (string, bool) {
	switch d := v.(type) {
	case nil:
		return "", false
	case string:
		return d, true
	case []any:
		parts := make([]string, 0, len(d))
		for _, item := range d {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ","), true
	default:
		return fmt.Sprint(d), true
	}
}
