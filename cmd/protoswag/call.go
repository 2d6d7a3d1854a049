package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/i2y/protoswag/configs"
	"github.com/i2y/protoswag/internal/adapter/outbound/openapi"
	"github.com/i2y/protoswag/internal/adapter/outbound/openapiclient"
	"github.com/i2y/protoswag/internal/methodconfig"
	"github.com/i2y/protoswag/internal/schema"
)

type callOptions struct {
	service     string
	protoFiles  []string
	importPaths []string
	upstream    string
	document    string
	baseURL     string
	request     string
	headers     []string
	verbose     bool
}

func newCallCommand() *cobra.Command {
	var opts callOptions
	cmd := &cobra.Command{
		Use:   "call METHOD",
		Short: "Call a method through the HTTP operation of an OpenAPI document",
		Long: `call reads a document generated by protoswag, encodes the JSON request into
the parameters of the method's operation and prints the response as JSON.

Example:
  protoswag call Add -i demo.proto -d http://localhost:8080/openapi.json \
    -r '{"a": 3, "b": 4}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callMethod(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.service, "service", "s", "", "fully qualified service name; optional when only one service is defined")
	f.StringArrayVarP(&opts.protoFiles, "input", "i", nil, "proto file, glob or URL (repeatable)")
	f.StringArrayVarP(&opts.importPaths, "import-path", "I", nil, "proto import path (repeatable)")
	f.StringVarP(&opts.upstream, "upstream", "u", "", "read the service through gRPC reflection from this server instead of proto files")
	f.StringVarP(&opts.document, "document", "d", "", "OpenAPI document: file, github:// URL, HTTP(S) URL or server base URL (required)")
	f.StringVar(&opts.baseURL, "url", "", "base URL of the operations (default: first absolute server of the document)")
	f.StringVarP(&opts.request, "request", "r", "{}", "request message as JSON")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, "header 'Name: value' sent with the call and the document fetch (repeatable)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress to stderr")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("header %q is not of the form 'Name: value'", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func callMethod(cmd *cobra.Command, methodName string, opts callOptions) error {
	ctx := cmd.Context()
	var w io.Writer = io.Discard
	if opts.verbose {
		w = cmd.ErrOrStderr()
	}
	logger := slog.New(slog.NewTextHandler(w, nil))

	headers, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}
	cfg := &configs.Config{
		Service:           opts.service,
		ProtoFiles:        opts.protoFiles,
		ImportPaths:       opts.importPaths,
		Upstream:          opts.upstream,
		HTTPClientTimeout: configs.DefaultHTTPClientTimeout,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	source, err := schemaSource(cfg, httpClient, logger)
	if err != nil {
		return err
	}
	service, err := source.Service(ctx, cfg.Service)
	if err != nil {
		return err
	}
	method, ok := service.Method(methodName)
	if !ok {
		return fmt.Errorf("service %s has no unary method %s", service.Name, methodName)
	}

	doc, err := openapi.NewDocumentFetcher(httpClient, logger).Fetch(ctx, opts.document, headers)
	if err != nil {
		return err
	}
	plans, err := openapi.PlansFromDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to read method plans from %s: %w", opts.document, err)
	}
	reflector := schema.NewReflector()
	if err := methodconfig.NewResolver(reflector, logger).Validate(service.Methods, plans); err != nil {
		return fmt.Errorf("document %s does not match service %s: %w", opts.document, service.Name, err)
	}

	baseURL := opts.baseURL
	if baseURL == "" {
		baseURL = openapiclient.ServerURL(doc)
	}
	if baseURL == "" {
		return fmt.Errorf("document %s names no absolute server URL; set --url", opts.document)
	}

	request := dynamicpb.NewMessage(method.Input)
	if err := protojson.Unmarshal([]byte(opts.request), request); err != nil {
		return fmt.Errorf("invalid %s request: %w", method.Input.FullName(), err)
	}

	client := openapiclient.New(baseURL, plans, reflector, httpClient, logger).WithHeaders(headers)
	out, err := client.Call(ctx, method.Name, request)
	if err != nil {
		return err
	}

	response := dynamicpb.NewMessage(method.Output)
	if err := proto.Unmarshal(out, response); err != nil {
		return fmt.Errorf("invalid %s response: %w", method.Output.FullName(), err)
	}
	data, err := protojson.MarshalOptions{Multiline: true}.Marshal(response)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
