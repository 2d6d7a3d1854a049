package openapi

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
)

// Version is the OpenAPI version of generated documents.
const Version = "3.0.3"

var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

// DocumentGenerator derives an OpenAPI document from resolved method plans.
type DocumentGenerator struct {
	reflector *schema.Reflector
	base      *BaseDocument
	logger    *slog.Logger
}

// NewDocumentGenerator creates a DocumentGenerator. The global sections of base,
// which may be nil, are copied into every generated document.
func NewDocumentGenerator(reflector *schema.Reflector, base *BaseDocument, logger *slog.Logger) *DocumentGenerator {
	return &DocumentGenerator{
		reflector: reflector,
		base:      base,
		logger:    logger.With("component", "openapi_generator"),
	}
}

// Generate builds one operation per plan and validates the result. A document
// which does not validate is an error.
func (g *DocumentGenerator) Generate(ctx context.Context, service domain.ServiceSchema, plans []domain.MethodPlan) (*openapi3.T, error) {
	log := g.logger.With(slog.String("service", service.Name))
	log.Info("Generating OpenAPI document", slog.Int("methods", len(plans)))

	doc := &openapi3.T{
		OpenAPI: Version,
		Info:    defaultInfo(service),
		Paths:   openapi3.NewPaths(),
	}
	if base := g.base; base != nil {
		if base.Info != nil {
			doc.Info = base.Info
		}
		doc.Servers = base.Servers
		if len(base.SecuritySchemes) > 0 {
			doc.Components = &openapi3.Components{SecuritySchemes: base.SecuritySchemes}
		}
		doc.Security = base.Security
	}

	routes := make(map[string]string, len(plans))
	for _, plan := range plans {
		method, ok := service.Method(plan.Method)
		if !ok {
			return nil, fmt.Errorf("%w: plan for unknown method %s", domain.ErrInvalidDocument, plan.Method)
		}
		route := plan.HTTPMethod + " " + placeholderPattern.ReplaceAllString(plan.Path, "{}")
		if other, ok := routes[route]; ok {
			return nil, fmt.Errorf("%w: methods %s and %s share the route %s %s",
				domain.ErrInvalidDocument, other, plan.Method, plan.HTTPMethod, plan.Path)
		}
		routes[route] = plan.Method

		op, err := g.operation(method, plan)
		if err != nil {
			return nil, err
		}
		item := doc.Paths.Value(plan.Path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(plan.Path, item)
		}
		item.SetOperation(plan.HTTPMethod, op)
		log.Debug("Added operation", slog.String("method", plan.Method),
			slog.String("http_method", plan.HTTPMethod), slog.String("path", plan.Path))
	}

	if err := doc.Validate(ctx); err != nil {
		log.Error("Generated OpenAPI document is invalid", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	log.Info("OpenAPI document is valid")
	return doc, nil
}

func defaultInfo(service domain.ServiceSchema) *openapi3.Info {
	description := service.Description
	if description == "" {
		description = fmt.Sprintf("REST API for %s service.", service.Name)
	}
	return &openapi3.Info{
		Title:       service.Name,
		Description: description,
		Version:     "1.0.0",
	}
}

func (g *DocumentGenerator) operation(method domain.MethodSchema, plan domain.MethodPlan) (*openapi3.Operation, error) {
	op := &openapi3.Operation{
		OperationID: plan.Method,
		Summary:     firstLine(method.Description),
		Description: method.Description,
		Responses:   responses(method),
	}

	for _, p := range plan.Params {
		if p.In == domain.LocationBody {
			description := method.InputDescription
			if description == "" {
				description = fmt.Sprintf("Serialized `%s` message.", method.Input.FullName())
			}
			op.RequestBody = &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Description: description,
					Required:    true,
					Content: openapi3.Content{
						domain.ContentType: &openapi3.MediaType{Schema: binarySchema()},
					},
				},
			}
			continue
		}
		param, err := g.parameter(method, p)
		if err != nil {
			return nil, err
		}
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{Value: param})
	}

	if plan.Security != nil {
		security := openapi3.NewSecurityRequirements()
		if *plan.Security != "" {
			security.With(openapi3.NewSecurityRequirement().Authenticate(*plan.Security))
		}
		op.Security = security
	}
	return op, nil
}

func (g *DocumentGenerator) parameter(method domain.MethodSchema, p domain.ParamSpec) (*openapi3.Parameter, error) {
	valueSchema := &openapi3.Schema{
		Type:   &openapi3.Types{openapi3.TypeString},
		Format: string(p.Format),
	}
	description := method.InputDescription
	if description == "" {
		description = fmt.Sprintf("Serialized `%s` message.", method.Input.FullName())
	}

	paramSchema := valueSchema
	if !p.IsWholeRequest() {
		fd, ok := g.reflector.FindField(method.Input, p.Field)
		if !ok {
			return nil, fmt.Errorf("%w: could not find field '%s' in %s", domain.ErrInvalidDocument, p.Field, method.Input.FullName())
		}
		description = schema.Comment(fd.Proto())
		if description == "" {
			description = fmt.Sprintf("Value of request field `%s`.", p.Field)
		}
		if fd.Kind == domain.KindArray {
			paramSchema = &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: &openapi3.SchemaRef{Value: valueSchema},
			}
		}
	}
	if p.Default != nil {
		if paramSchema.Type.Is(openapi3.TypeArray) {
			var items []any
			for _, item := range strings.Split(*p.Default, ",") {
				items = append(items, item)
			}
			paramSchema.Default = items
		} else {
			paramSchema.Default = *p.Default
		}
	}

	return &openapi3.Parameter{
		Extensions:      map[string]any{domain.RequestPartExtension: p.Field},
		Name:            p.Name,
		In:              string(p.In),
		Description:     description,
		Style:           p.Style,
		Explode:         p.Explode,
		AllowEmptyValue: p.In == domain.LocationQuery,
		Required:        p.In == domain.LocationPath || p.Default == nil,
		Schema:          &openapi3.SchemaRef{Value: paramSchema},
	}, nil
}

func responses(method domain.MethodSchema) *openapi3.Responses {
	ok := method.OutputDescription
	if ok == "" {
		ok = fmt.Sprintf("Serialized `%s` message.", method.Output.FullName())
	}
	badRequest := "The request parameters could not be decoded."
	internalError := "The request could not be processed."

	text := openapi3.Content{
		"text/plain": &openapi3.MediaType{Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeString}}}},
	}
	rs := openapi3.NewResponses()
	rs.Delete("default")
	rs.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &ok,
		Content:     openapi3.Content{domain.ContentType: &openapi3.MediaType{Schema: binarySchema()}},
	}})
	rs.Set("400", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &badRequest, Content: text}})
	rs.Set("500", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &internalError, Content: text}})
	return rs
}

func binarySchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:   &openapi3.Types{openapi3.TypeString},
		Format: "binary",
	}}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
