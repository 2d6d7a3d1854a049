package grpcinvoker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/i2y/protoswag/internal/adapter/outbound/grpcinvoker"
	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/testproto"
	"github.com/i2y/protoswag/internal/usecase"
)

func pair(t *testing.T, a, b int32) []byte {
	t.Helper()
	md := testproto.Message(t, "Pair")
	msg := dynamicpb.NewMessage(md)
	msg.Set(md.Fields().ByName("a"), protoreflect.ValueOfInt32(a))
	msg.Set(md.Fields().ByName("b"), protoreflect.ValueOfInt32(b))
	out, err := proto.Marshal(msg)
	require.NoError(t, err)
	return out
}

func sum(t *testing.T, data []byte) int64 {
	t.Helper()
	md := testproto.Message(t, "Sum")
	msg := dynamicpb.NewMessage(md)
	require.NoError(t, proto.Unmarshal(data, msg))
	return msg.Get(md.Fields().ByName("value")).Int()
}

func TestInvoker_Invoke(t *testing.T) {
	server := testproto.StartServer(t)
	invoker := grpcinvoker.NewInvoker(testproto.Target, slog.New(slog.NewTextHandler(io.Discard, nil)), server.DialOptions()...)
	t.Cleanup(func() { _ = invoker.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name       string
		method     string
		request    []byte
		want       int64
		wantErr    bool
		wantErrIs  error
		wantErrStr string
	}{
		{
			name:    "Add",
			method:  "/demo.Calculator/Add",
			request: pair(t, 3, 4),
			want:    7,
		},
		{
			name:    "Empty request",
			method:  "/demo.Calculator/Add",
			request: []byte{},
			want:    0,
		},
		{
			name:      "Unimplemented method",
			method:    "/demo.Calculator/Series",
			request:   []byte{},
			wantErr:   true,
			wantErrIs: domain.ErrMethodNotImplemented,
		},
		{
			name:       "Server error",
			method:     "/demo.Calculator/Upload",
			request:    []byte{},
			wantErr:    true,
			wantErrStr: "InvalidArgument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := invoker.Invoke(ctx, tt.method, tt.request)
			if tt.wantErr {
				require.Error(t, err)
				if tt.wantErrIs != nil {
					assert.ErrorIs(t, err, tt.wantErrIs)
				}
				if tt.wantErrStr != "" {
					assert.Contains(t, err.Error(), tt.wantErrStr)
					assert.NotErrorIs(t, err, domain.ErrMethodNotImplemented)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sum(t, resp))
		})
	}
}

func TestInvoker_ForwardsHeaders(t *testing.T) {
	server := testproto.StartServer(t)
	invoker := grpcinvoker.NewInvoker(testproto.Target, slog.New(slog.NewTextHandler(io.Discard, nil)), server.DialOptions()...)
	t.Cleanup(func() { _ = invoker.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = usecase.WithForwardedHeaders(ctx, map[string]string{"Authorization": "Bearer token"})

	_, err := invoker.Invoke(ctx, "/demo.Calculator/Add", pair(t, 1, 1))
	require.NoError(t, err)

	select {
	case md := <-server.Metadata:
		assert.Equal(t, []string{"Bearer token"}, md.Get("authorization"))
	case <-ctx.Done():
		t.Fatal("no call recorded")
	}
}

func TestInvoker_CloseWithoutConnection(t *testing.T) {
	invoker := grpcinvoker.NewInvoker("grpc://localhost:1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, invoker.Close())
}
