// Package mcptools exposes registered methods as MCP tools.
package mcptools

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
	"github.com/i2y/protoswag/internal/usecase"
)

// Invoker runs one method call. *usecase.InvokeMethodUseCase implements it.
type Invoker interface {
	Execute(ctx context.Context, methodName string, values usecase.ParamSource) ([]byte, error)
}

// Tools builds one MCP tool per method plan.
type Tools struct {
	reg       *usecase.Registration
	invoker   Invoker
	reflector *schema.Reflector
	logger    *slog.Logger
}

// NewTools creates the tool set of a registration.
func NewTools(reg *usecase.Registration, invoker Invoker, reflector *schema.Reflector, logger *slog.Logger) *Tools {
	return &Tools{
		reg:       reg,
		invoker:   invoker,
		reflector: reflector,
		logger:    logger.With("component", "mcp_tools"),
	}
}

// Register adds every tool to s.
func (t *Tools) Register(s *server.MCPServer) {
	tools := t.ServerTools()
	s.AddTools(tools...)
	t.logger.Info("Registered MCP tools", slog.Int("count", len(tools)))
}

// ServerTools returns the tools with their handlers.
func (t *Tools) ServerTools() []server.ServerTool {
	var tools []server.ServerTool
	for _, plan := range t.reg.Plans {
		method, ok := t.reg.Service.Method(plan.Method)
		if !ok {
			continue
		}
		tools = append(tools, server.ServerTool{
			Tool:    t.tool(method, plan),
			Handler: t.handler(method, plan),
		})
	}
	return tools
}

func (t *Tools) tool(method domain.MethodSchema, plan domain.MethodPlan) mcp.Tool {
	description := method.Description
	if description == "" {
		description = fmt.Sprintf("Calls %s.", method.FullName)
	}
	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithReadOnlyHintAnnotation(plan.HTTPMethod == "GET"),
	}

	for _, p := range plan.Params {
		if p.In == domain.LocationBody {
			opts = append(opts, mcp.WithString(p.Name, mcp.Required(),
				mcp.Description(fmt.Sprintf("Base64 encoded `%s` message.", method.Input.FullName()))))
			continue
		}

		props := []mcp.PropertyOption{mcp.Description(t.describe(method, p))}
		if p.Default != nil {
			props = append(props, mcp.DefaultString(*p.Default))
		} else {
			props = append(props, mcp.Required())
		}
		if fd, ok := t.reflector.FindField(method.Input, p.Field); ok && !p.IsWholeRequest() && fd.Kind == domain.KindArray {
			props = append(props, mcp.Items(map[string]any{"type": "string"}))
			opts = append(opts, mcp.WithArray(p.Name, props...))
			continue
		}
		opts = append(opts, mcp.WithString(p.Name, props...))
	}
	return mcp.NewTool(plan.Method, opts...)
}

func (t *Tools) describe(method domain.MethodSchema, p domain.ParamSpec) string {
	if p.IsWholeRequest() {
		return fmt.Sprintf("`%s` message encoded as %s.", method.Input.FullName(), p.Format)
	}
	description := fmt.Sprintf("Value of request field `%s`", p.Field)
	if fd, ok := t.reflector.FindField(method.Input, p.Field); ok {
		if comment := schema.Comment(fd.Proto()); comment != "" {
			description = comment
		}
	}
	if p.Format != domain.FormatString {
		description += fmt.Sprintf(" (%s encoded)", p.Format)
	}
	return description
}

func (t *Tools) handler(method domain.MethodSchema, plan domain.MethodPlan) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := t.logger.With(slog.String("tool", plan.Method))
		args := request.GetArguments()

		values := usecase.ParamValues{}
		for _, p := range plan.Params {
			raw, ok := args[p.Name]
			if !ok {
				continue
			}
			if p.In == domain.LocationBody {
				s, _ := raw.(string)
				body, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("argument %s is not valid base64: %v", p.Name, err)), nil
				}
				values[p.Name] = []string{string(body)}
				continue
			}
			values[p.Name] = stringsOf(raw)
		}

		out, err := t.invoker.Execute(ctx, plan.Method, values)
		if err != nil {
			log.Warn("Tool call failed", slog.Any("error", err))
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(render(method, out)), nil
	}
}

// render shows the response as protojson, falling back to base64 when it
// does not decode.
func render(method domain.MethodSchema, out []byte) string {
	msg := dynamicpb.NewMessage(method.Output)
	if err := proto.Unmarshal(out, msg); err == nil {
		if text, err := protojson.Marshal(msg); err == nil {
			return string(text)
		}
	}
	return base64.StdEncoding.EncodeToString(out)
}

func stringsOf(v any) []string {
	switch v := v.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, scalarString(item))
		}
		return out
	case []string:
		return v
	default:
		return []string{scalarString(v)}
	}
}

func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
