package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/protoswag/configs"
	"github.com/i2y/protoswag/internal/adapter/outbound/connect"
	"github.com/i2y/protoswag/internal/adapter/outbound/grpcinvoker"
	"github.com/i2y/protoswag/internal/testproto"
)

func writeProto(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	full := filepath.Join(dir, testproto.FileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(testproto.Source), 0o644))
	return dir
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestGen(t *testing.T) {
	dir := writeProto(t)
	args := []string{"gen", "-i", testproto.FileName, "-I", dir,
		"-c", "Add:get,flat",
		"-c", "Lookup:get,path=/tiles/{tile},header.tile_id?name=tile&in=path&style=label",
	}

	t.Run("stdout", func(t *testing.T) {
		out, err := runRoot(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "openapi: 3.0.3")
		assert.Contains(t, out, "operationId: Add")
		assert.Contains(t, out, "operationId: Lookup")
	})

	t.Run("json file", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "openapi.json")
		_, err := runRoot(t, append(args, "-o", output)...)
		require.NoError(t, err)

		doc, err := openapi3.NewLoader().LoadFromFile(output)
		require.NoError(t, err)
		require.NoError(t, doc.Validate(context.Background()))
		add := doc.Paths.Find("/Add")
		require.NotNil(t, add)
		require.NotNil(t, add.Get)
		assert.Len(t, add.Get.Parameters, 2)
	})

	t.Run("bad tag", func(t *testing.T) {
		_, err := runRoot(t, "gen", "-i", testproto.FileName, "-I", dir, "-c", "Add:get,sideways")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "did not understand tag")
	})

	t.Run("no input", func(t *testing.T) {
		_, err := runRoot(t, "gen")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no schema source")
	})
}

func TestCall(t *testing.T) {
	dir := writeProto(t)
	document := filepath.Join(t.TempDir(), "openapi.yaml")
	_, err := runRoot(t, "gen", "-i", testproto.FileName, "-I", dir, "-c", "Add:get,flat", "-o", document)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/Add" || r.Header.Get("Authorization") != "Bearer t" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("a") != "3" || r.URL.Query().Get("b") != "4" {
			http.Error(w, "unexpected operands", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte{0x08, 0x07})
	}))
	t.Cleanup(srv.Close)

	base := []string{"call", "Add", "-i", testproto.FileName, "-I", dir, "-d", document}

	t.Run("prints the response", func(t *testing.T) {
		out, err := runRoot(t, append(base, "--url", srv.URL, "-H", "Authorization: Bearer t", "-r", `{"a": 3, "b": 4}`)...)
		require.NoError(t, err)
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "7", resp["value"])
	})

	t.Run("server error", func(t *testing.T) {
		_, err := runRoot(t, append(base, "--url", srv.URL, "-r", `{"a": 3, "b": 4}`)...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP status 400")
	})

	t.Run("no server URL", func(t *testing.T) {
		_, err := runRoot(t, base...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "set --url")
	})

	t.Run("bad request JSON", func(t *testing.T) {
		_, err := runRoot(t, append(base, "--url", srv.URL, "-r", `{"c": 1}`)...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid demo.Pair request")
	})

	t.Run("bad header", func(t *testing.T) {
		_, err := runRoot(t, append(base, "--url", srv.URL, "-H", "no-colon")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Name: value")
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := runRoot(t, "call", "Divide", "-i", testproto.FileName, "-I", dir, "-d", document)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no unary method Divide")
	})
}

func TestRegister_FromDocument(t *testing.T) {
	dir := writeProto(t)
	output := filepath.Join(t.TempDir(), "openapi.yaml")
	_, err := runRoot(t, "gen", "-i", testproto.FileName, "-I", dir, "-c", "Add:get,flat", "-o", output)
	require.NoError(t, err)

	cfg := &configs.Config{
		ProtoFiles:        []string{testproto.FileName},
		ImportPaths:       []string{dir},
		Document:          output,
		HTTPClientTimeout: configs.DefaultHTTPClientTimeout,
	}
	r, err := register(context.Background(), cfg, newLogger(cfg))
	require.NoError(t, err)

	plan, _, ok := r.reg.Plan("Add")
	require.True(t, ok)
	assert.Equal(t, "GET", plan.HTTPMethod)
	assert.Len(t, plan.Params, 2)
}

func TestUpstream(t *testing.T) {
	cfg := &configs.Config{HTTPClientTimeout: configs.DefaultHTTPClientTimeout}
	logger := newLogger(cfg)

	up, closeFn := upstream(cfg, logger)
	assert.Nil(t, up)
	assert.NoError(t, closeFn())

	cfg.Upstream = "https://calc.example.com"
	up, _ = upstream(cfg, logger)
	assert.IsType(t, &connect.Invoker{}, up)

	cfg.Upstream = "grpc://localhost:50051"
	up, closeFn = upstream(cfg, logger)
	assert.IsType(t, &grpcinvoker.Invoker{}, up)
	assert.NoError(t, closeFn())
}

func TestSchemaSource_ConnectUpstreamNeedsProtoFiles(t *testing.T) {
	cfg := &configs.Config{Upstream: "http://localhost:8080"}
	_, err := schemaSource(cfg, nil, newLogger(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set proto files")
}

func TestInitOtelProvider(t *testing.T) {
	cfg := &configs.Config{}
	logger := newLogger(cfg)

	shutdown, err := initOtelProvider(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	cfg.OtelExporterStdout = true
	shutdown, err = initOtelProvider(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
