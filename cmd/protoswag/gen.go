package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/i2y/protoswag/configs"
	"github.com/i2y/protoswag/internal/adapter/outbound/openapi"
)

type genOptions struct {
	service      string
	protoFiles   []string
	importPaths  []string
	upstream     string
	tags         []string
	baseDocument string
	output       string
	verbose      bool
}

func newGenCommand() *cobra.Command {
	var opts genOptions
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate the OpenAPI document of a service",
		Long: `gen resolves the method tags of a service and writes the derived OpenAPI
document. The document is validated before it is written.

Example:
  protoswag gen -s demo.Calculator -i 'protos/**/*.proto' -I protos \
    -c get -c 'Upload:post,body' -o openapi.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.service, "service", "s", "", "fully qualified service name; optional when only one service is defined")
	f.StringArrayVarP(&opts.protoFiles, "input", "i", nil, "proto file, glob or URL (repeatable)")
	f.StringArrayVarP(&opts.importPaths, "import-path", "I", nil, "proto import path (repeatable)")
	f.StringVarP(&opts.upstream, "upstream", "u", "", "read the service through gRPC reflection from this server instead of proto files")
	f.StringArrayVarP(&opts.tags, "config", "c", nil, "method tags [method:]tag[,tag]* (repeatable)")
	f.StringVarP(&opts.baseDocument, "base", "b", "", "base document with methods, info, servers and security sections")
	f.StringVarP(&opts.output, "output", "o", "", "output file, .json for JSON and YAML otherwise (default: stdout)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress to stderr")
	return cmd
}

func generate(cmd *cobra.Command, opts genOptions) error {
	cfg := &configs.Config{
		Service:           opts.service,
		ProtoFiles:        opts.protoFiles,
		ImportPaths:       opts.importPaths,
		Upstream:          opts.upstream,
		Tags:              opts.tags,
		BaseDocument:      opts.baseDocument,
		HTTPClientTimeout: configs.DefaultHTTPClientTimeout,
	}

	var w io.Writer = io.Discard
	if opts.verbose {
		w = cmd.ErrOrStderr()
	}
	logger := slog.New(slog.NewTextHandler(w, nil))

	r, err := register(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := openapi.WriteFile(opts.output, r.reg.Document); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d operations)\n", opts.output, len(r.reg.Plans))
		return nil
	}
	data, err := openapi.MarshalYAML(r.reg.Document)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
