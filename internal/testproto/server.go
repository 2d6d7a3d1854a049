package testproto

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	reflectionv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	reflectionv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Server is an in-process Calculator with server reflection enabled.
type Server struct {
	listener *bufconn.Listener
	// Metadata holds the incoming metadata of the last call.
	Metadata chan metadata.MD
}

// Target is the dial target to use together with Server.DialOptions.
const Target = "passthrough:///bufnet"

// StartServer serves Add and Upload of the demo Calculator over an in-memory
// listener until the test ends. Add returns a+b; Upload returns the length of
// the blob; every other method is unimplemented.
func StartServer(t testing.TB) *Server {
	t.Helper()
	file := File(t).UnwrapFile()
	files := new(protoregistry.Files)
	require.NoError(t, files.RegisterFile(file))

	s := &Server{
		listener: bufconn.Listen(1 << 20),
		Metadata: make(chan metadata.MD, 16),
	}
	srv := grpc.NewServer()

	svc := file.Services().ByName("Calculator")
	sum := file.Messages().ByName("Sum")
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: string(svc.FullName()),
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Add", Handler: s.unary(file.Messages().ByName("Pair"), sum, func(in, out protoreflect.Message) error {
				a := in.Get(in.Descriptor().Fields().ByName("a")).Int()
				b := in.Get(in.Descriptor().Fields().ByName("b")).Int()
				out.Set(out.Descriptor().Fields().ByName("value"), protoreflect.ValueOfInt64(a+b))
				return nil
			})},
			{MethodName: "Upload", Handler: s.unary(file.Messages().ByName("Blob"), sum, func(in, out protoreflect.Message) error {
				data := in.Get(in.Descriptor().Fields().ByName("data")).Bytes()
				if len(data) == 0 {
					return status.Error(codes.InvalidArgument, "empty blob")
				}
				out.Set(out.Descriptor().Fields().ByName("value"), protoreflect.ValueOfInt64(int64(len(data))))
				return nil
			})},
		},
		Metadata: FileName,
	}, struct{}{})

	opts := reflection.ServerOptions{Services: srv, DescriptorResolver: files}
	reflectionv1.RegisterServerReflectionServer(srv, reflection.NewServerV1(opts))
	reflectionv1alpha.RegisterServerReflectionServer(srv, reflection.NewServer(opts))

	go func() { _ = srv.Serve(s.listener) }()
	t.Cleanup(srv.Stop)
	return s
}

// DialOptions connect a client to the server.
func (s *Server) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

func (s *Server) unary(in, out protoreflect.MessageDescriptor, fn func(in, out protoreflect.Message) error) grpc.MethodHandler {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := dynamicpb.NewMessage(in)
		if err := dec(req); err != nil {
			return nil, err
		}
		md, _ := metadata.FromIncomingContext(ctx)
		select {
		case s.Metadata <- md:
		default:
		}
		resp := dynamicpb.NewMessage(out)
		if err := fn(req, resp); err != nil {
			return nil, err
		}
		return resp, nil
	}
}
