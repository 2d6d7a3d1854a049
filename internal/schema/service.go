package schema

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/i2y/protoswag/internal/domain"
)

// ServiceFromDescriptor converts a proto service into the schema the rest of
// the bridge works on. Streaming methods are skipped since they cannot be
// served as a single HTTP exchange.
func ServiceFromDescriptor(sd protoreflect.ServiceDescriptor) domain.ServiceSchema {
	service := domain.ServiceSchema{
		Name:        string(sd.FullName()),
		Description: Comment(sd),
	}
	methods := sd.Methods()
	for i := 0; i < methods.Len(); i++ {
		md := methods.Get(i)
		if md.IsStreamingClient() || md.IsStreamingServer() {
			continue
		}
		service.Methods = append(service.Methods, domain.MethodSchema{
			Name:              string(md.Name()),
			FullName:          fmt.Sprintf("/%s/%s", sd.FullName(), md.Name()),
			Input:             md.Input(),
			Output:            md.Output(),
			Description:       Comment(md),
			InputDescription:  Comment(md.Input()),
			OutputDescription: Comment(md.Output()),
		})
	}
	return service
}
