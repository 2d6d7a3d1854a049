// Package schema reflects protobuf message types into the field trees the
// parameter mapping works on.
package schema

import (
	"iter"
	"strings"
	"sync"

	"github.com/i2y/protoswag/internal/domain"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Type is the reflected shape of one message type.
type Type struct {
	Message protoreflect.MessageDescriptor
	Members []Member
	// Cyclic marks a message which (transitively) contains itself. Its members
	// are not expanded a second time.
	Cyclic bool
}

// Member is one field of a reflected message type.
type Member struct {
	Field    protoreflect.FieldDescriptor
	Kind     domain.FieldKind
	ElemKind domain.FieldKind
	// Type is set for compound members and arrays of compounds.
	Type *Type
}

// Name returns the schema-native field name.
func (m Member) Name() string {
	return string(m.Field.Name())
}

// Reflector builds and caches Type trees. It is safe for concurrent use.
type Reflector struct {
	cache sync.Map // protoreflect.MessageDescriptor -> *Type
}

// NewReflector creates an empty Reflector.
func NewReflector() *Reflector {
	return &Reflector{}
}

// TypeOf returns the reflected tree for md. Results are memoized per
// descriptor; concurrent first calls may both build the tree, and either
// result is kept.
func (r *Reflector) TypeOf(md protoreflect.MessageDescriptor) *Type {
	if t, ok := r.cache.Load(md); ok {
		return t.(*Type)
	}
	t := build(md, map[protoreflect.FullName]bool{})
	r.cache.Store(md, t)
	return t
}

func build(md protoreflect.MessageDescriptor, visiting map[protoreflect.FullName]bool) *Type {
	if visiting[md.FullName()] {
		return &Type{Message: md, Cyclic: true}
	}
	visiting[md.FullName()] = true
	defer delete(visiting, md.FullName())

	fields := md.Fields()
	t := &Type{Message: md, Members: make([]Member, 0, fields.Len())}
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		m := Member{Field: fd, Kind: elemKind(fd)}
		switch {
		case fd.IsMap():
			m.Kind, m.ElemKind = domain.KindArray, domain.KindCompound
			m.Type = build(fd.Message(), visiting)
		case fd.IsList():
			m.Kind, m.ElemKind = domain.KindArray, elemKind(fd)
			if m.ElemKind == domain.KindCompound {
				m.Type = build(fd.Message(), visiting)
			}
		case m.Kind == domain.KindCompound:
			m.Type = build(fd.Message(), visiting)
		}
		t.Members = append(t.Members, m)
	}
	return t
}

func elemKind(fd protoreflect.FieldDescriptor) domain.FieldKind {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return domain.KindCompound
	case protoreflect.EnumKind:
		return domain.KindEnum
	default:
		return domain.KindScalar
	}
}

// IsScalar reports whether values of fd's element type are bool, numeric,
// string, bytes or enum values.
func IsScalar(fd protoreflect.FieldDescriptor) bool {
	return !fd.IsMap() && elemKind(fd) != domain.KindCompound
}

// Fields enumerates the fields of md as (dotted name, descriptor) pairs.
// With recursive set, the walk descends into compound fields. The sequence
// holds no state between iterations and can be ranged over repeatedly.
func (r *Reflector) Fields(md protoreflect.MessageDescriptor, recursive bool) iter.Seq2[string, domain.FieldDescriptor] {
	return func(yield func(string, domain.FieldDescriptor) bool) {
		walk(r.TypeOf(md), nil, nil, recursive, yield)
	}
}

func walk(t *Type, prefix domain.FieldPath, chain []protoreflect.FieldDescriptor, recursive bool, yield func(string, domain.FieldDescriptor) bool) bool {
	for _, m := range t.Members {
		path := append(prefix[:len(prefix):len(prefix)], m.Name())
		fchain := append(chain[:len(chain):len(chain)], m.Field)
		fd := domain.FieldDescriptor{
			Path:          path,
			Kind:          m.Kind,
			ElemKind:      m.ElemKind,
			Constructable: memberReason(m, "") == nil,
			Chain:         fchain,
		}
		if !yield(path.String(), fd) {
			return false
		}
		if recursive && m.Kind == domain.KindCompound {
			if !walk(m.Type, path, fchain, recursive, yield) {
				return false
			}
		}
	}
	return true
}

// CheckConstructable returns the first reason why md cannot be synthesized
// field by field, or nil. Field names in the reason are prefixed with path.
func (r *Reflector) CheckConstructable(md protoreflect.MessageDescriptor, path string) *domain.UnconstructableFieldError {
	return typeReason(r.TypeOf(md), path)
}

func typeReason(t *Type, path string) *domain.UnconstructableFieldError {
	for _, m := range t.Members {
		name := m.Name()
		if path != "" {
			name = path + "." + name
		}
		if reason := memberReason(m, name); reason != nil {
			return reason
		}
	}
	return nil
}

func memberReason(m Member, name string) *domain.UnconstructableFieldError {
	if name == "" {
		name = m.Name()
	}
	switch {
	case m.Field.IsMap():
		return &domain.UnconstructableFieldError{
			Field:  name,
			Type:   mapTypeName(m.Field),
			Reason: "map fields cannot be built from flat parameters",
		}
	case m.Kind == domain.KindArray && m.ElemKind == domain.KindCompound:
		return &domain.UnconstructableFieldError{
			Field:  name,
			Type:   string(m.Field.Message().FullName()) + "[]",
			Reason: "array of non-scalar elements",
		}
	case m.Kind != domain.KindCompound:
		return nil
	case m.Type.Cyclic:
		return &domain.UnconstructableFieldError{
			Field:  name,
			Type:   string(m.Type.Message.FullName()),
			Reason: "recursive message type",
		}
	case m.Field.ContainingOneof() != nil && !m.Field.ContainingOneof().IsSynthetic():
		return &domain.UnconstructableFieldError{
			Field:  name,
			Type:   string(m.Type.Message.FullName()),
			Reason: "message member of oneof `" + string(m.Field.ContainingOneof().Name()) + "`",
		}
	}
	return typeReason(m.Type, name)
}

func mapTypeName(fd protoreflect.FieldDescriptor) string {
	kindName := func(v protoreflect.FieldDescriptor) string {
		switch v.Kind() {
		case protoreflect.MessageKind, protoreflect.GroupKind:
			return string(v.Message().FullName())
		case protoreflect.EnumKind:
			return string(v.Enum().FullName())
		}
		return v.Kind().String()
	}
	return "map<" + kindName(fd.MapKey()) + ", " + kindName(fd.MapValue()) + ">"
}

// FindField resolves a dotted path of schema-native field names through
// nested compounds. It fails on a missing segment and when an intermediate
// segment is not a compound field.
func (r *Reflector) FindField(md protoreflect.MessageDescriptor, dotted string) (domain.FieldDescriptor, bool) {
	if dotted == "" {
		return domain.FieldDescriptor{}, false
	}
	t := r.TypeOf(md)
	var (
		path  domain.FieldPath
		chain []protoreflect.FieldDescriptor
	)
	rest := dotted
	for {
		segment, tail, more := strings.Cut(rest, ".")
		m, ok := member(t, segment)
		if !ok {
			return domain.FieldDescriptor{}, false
		}
		path = append(path, segment)
		chain = append(chain, m.Field)
		if !more {
			return domain.FieldDescriptor{
				Path:          path,
				Kind:          m.Kind,
				ElemKind:      m.ElemKind,
				Constructable: memberReason(m, "") == nil,
				Chain:         chain,
			}, true
		}
		if m.Kind != domain.KindCompound || m.Type.Cyclic {
			return domain.FieldDescriptor{}, false
		}
		t, rest = m.Type, tail
	}
}

func member(t *Type, name string) (Member, bool) {
	for _, m := range t.Members {
		if m.Name() == name {
			return m, true
		}
	}
	return Member{}, false
}
