package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/i2y/protoswag/internal/codec"
	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
)

// RequestAssembler rebuilds serialized request messages from HTTP parameters.
// It only reads plans and descriptors; the one piece of state it owns is the
// set of methods which hit an internal error.
type RequestAssembler struct {
	reflector *schema.Reflector
	logger    *slog.Logger
	poisoned  sync.Map // method full name -> error
}

// NewRequestAssembler creates a RequestAssembler.
func NewRequestAssembler(reflector *schema.Reflector, logger *slog.Logger) *RequestAssembler {
	return &RequestAssembler{
		reflector: reflector,
		logger:    logger.With("component", "request_assembler"),
	}
}

// Assemble produces the wire bytes of method's request from the values found
// in values, following plan. A whole-request parameter is decoded and passed
// through untouched. Otherwise a message is built field by field and
// marshaled deterministically.
//
// Errors matching domain.ErrMissingParameter, domain.ErrEncoding or
// domain.ErrUnsupportedConversion are the caller's fault. An error matching
// domain.ErrInternal means plan and schema disagree; the method then keeps
// failing with that error.
func (a *RequestAssembler) Assemble(method domain.MethodSchema, plan domain.MethodPlan, values ParamSource) ([]byte, error) {
	if err, ok := a.poisoned.Load(method.FullName); ok {
		return nil, err.(error)
	}
	out, err := a.assemble(method, plan, values)
	if errors.Is(err, domain.ErrInternal) {
		a.logger.Error("Internal error while assembling request, disabling method",
			slog.String("method", method.FullName), slog.Any("error", err))
		a.poisoned.Store(method.FullName, err)
	}
	return out, err
}

func (a *RequestAssembler) assemble(method domain.MethodSchema, plan domain.MethodPlan, values ParamSource) ([]byte, error) {
	if whole, ok := plan.WholeRequestParam(); ok {
		raw, _, err := lookup(whole, values)
		if err != nil {
			return nil, err
		}
		return codec.BytesFromEncoded(raw[0], whole.Format)
	}

	var msg *dynamicpb.Message
	for _, spec := range plan.Params {
		if spec.IsWholeRequest() {
			return nil, fmt.Errorf("%w: %s: whole request parameter %s is not the only parameter", domain.ErrInternal, method.Name, spec.Name)
		}
		raw, defaulted, err := lookup(spec, values)
		if err != nil {
			return nil, err
		}

		if msg == nil {
			if reason := a.reflector.CheckConstructable(method.Input, ""); reason != nil {
				reason.Method = method.Name
				return nil, fmt.Errorf("%w: %v", domain.ErrInternal, reason)
			}
			msg = dynamicpb.NewMessage(method.Input)
			prepopulate(msg)
		}

		fd, ok := a.reflector.FindField(method.Input, spec.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %s: could not find field %q in %s", domain.ErrInternal, method.Name, spec.Field, method.Input.FullName())
		}
		if fd.Proto().IsList() && defaulted {
			raw = strings.Split(raw[0], ",")
		}
		if err := set(msg, fd, spec, raw); err != nil {
			return nil, err
		}
	}

	if msg == nil {
		msg = dynamicpb.NewMessage(method.Input)
	}
	out, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to marshal request: %v", domain.ErrInternal, method.Name, err)
	}
	return out, nil
}

// lookup returns the values sent for spec, falling back to its default.
func lookup(spec domain.ParamSpec, values ParamSource) (raw []string, defaulted bool, err error) {
	if raw, ok := values.Lookup(spec); ok && len(raw) > 0 {
		return raw, false, nil
	}
	if spec.Default != nil {
		return []string{*spec.Default}, true, nil
	}
	return nil, false, fmt.Errorf("%w: %s (%s)", domain.ErrMissingParameter, spec.Name, spec.In)
}

// prepopulate creates every nested singular message so that fields can be set
// at any depth. The message must have passed CheckConstructable.
func prepopulate(msg protoreflect.Message) {
	fields := msg.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Message() == nil || fd.IsList() || fd.IsMap() {
			continue
		}
		prepopulate(msg.Mutable(fd).Message())
	}
}

func set(msg protoreflect.Message, fd domain.FieldDescriptor, spec domain.ParamSpec, raw []string) error {
	target := msg
	for _, parent := range fd.Chain[:len(fd.Chain)-1] {
		target = target.Mutable(parent).Message()
	}
	leaf := fd.Proto()

	if leaf.IsList() {
		elems, err := codec.ListFromValues(raw, spec.Format, leaf)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", spec.Name, err)
		}
		list := target.Mutable(leaf).List()
		for _, v := range elems {
			list.Append(v)
		}
		return nil
	}

	v, err := codec.ScalarFromBytesOrString(raw[0], spec.Format, leaf)
	if err != nil {
		return fmt.Errorf("parameter %s: %w", spec.Name, err)
	}
	target.Set(leaf, v)
	return nil
}
