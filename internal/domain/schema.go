package domain

import (
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// FieldPath addresses a (possibly nested) field of a request message,
// one proto field name per segment.
type FieldPath []string

// ParseFieldPath splits a dotted field path. An empty string yields a nil path.
func ParseFieldPath(dotted string) FieldPath {
	if dotted == "" {
		return nil
	}
	return strings.Split(dotted, ".")
}

// String returns the dotted form of the path, e.g. "header.tileId".
func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// FieldKind is the closed set of shapes a schema field can have.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindEnum
	KindArray
	KindCompound
)

func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	case KindCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// FieldDescriptor describes one field reachable from a request message.
type FieldDescriptor struct {
	Path FieldPath
	Kind FieldKind
	// ElemKind is the element shape when Kind is KindArray.
	ElemKind FieldKind
	// Constructable is false when the field can never be addressed on its own
	// from HTTP parameters and the request has to travel as a whole blob.
	Constructable bool
	// Chain holds the proto field descriptors from the root message down to
	// this field; the last element is the field itself.
	Chain []protoreflect.FieldDescriptor
}

// Proto returns the proto descriptor of the addressed field.
func (f FieldDescriptor) Proto() protoreflect.FieldDescriptor {
	if len(f.Chain) == 0 {
		return nil
	}
	return f.Chain[len(f.Chain)-1]
}

// ServiceSchema is a schema source's view of one RPC service.
type ServiceSchema struct {
	// Name is the fully qualified service name, e.g. "calc.Calculator".
	Name        string
	Description string
	Methods     []MethodSchema
}

// Method returns the method schema with the given name.
func (s ServiceSchema) Method(name string) (MethodSchema, bool) {
	for _, m := range s.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSchema{}, false
}

// MethodSchema carries the request and response types of one unary RPC method.
type MethodSchema struct {
	Name string
	// FullName is the gRPC method path, e.g. "/calc.Calculator/Add".
	FullName          string
	Input             protoreflect.MessageDescriptor
	Output            protoreflect.MessageDescriptor
	Description       string
	InputDescription  string
	OutputDescription string
}
