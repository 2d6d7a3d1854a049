// Package codec converts string-encoded HTTP parameter values into typed
// protobuf field values and back.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/i2y/protoswag/internal/domain"
)

// BytesFromEncoded decodes value according to format. The string and binary
// formats pass the value's bytes through unchanged.
func BytesFromEncoded(value string, format domain.ParamFormat) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch format {
	case domain.FormatByte, domain.FormatBase64:
		b, err = base64.StdEncoding.Strict().DecodeString(value)
	case domain.FormatBase64URL:
		if strings.ContainsRune(value, '=') {
			b, err = base64.URLEncoding.Strict().DecodeString(value)
		} else {
			b, err = base64.RawURLEncoding.Strict().DecodeString(value)
		}
	case domain.FormatHex:
		b, err = hex.DecodeString(value)
	case domain.FormatString, domain.FormatBinary, "":
		return []byte(value), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", domain.ErrUnsupportedConversion, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s value: %v", domain.ErrEncoding, format, err)
	}
	return b, nil
}

// EncodeBytes is the inverse of BytesFromEncoded. base64url output is unpadded.
func EncodeBytes(b []byte, format domain.ParamFormat) string {
	switch format {
	case domain.FormatByte, domain.FormatBase64:
		return base64.StdEncoding.EncodeToString(b)
	case domain.FormatBase64URL:
		return base64.RawURLEncoding.EncodeToString(b)
	case domain.FormatHex:
		return hex.EncodeToString(b)
	default:
		return string(b)
	}
}

// ScalarFromBytesOrString converts one parameter value into a value of fd's
// element type.
//
// The string format parses the value as text (booleans from integer strings).
// The hex format applied to an integer target parses hexadecimal text.
// Every other combination decodes the value to bytes first and reads them as
// a big-endian fixed width number, a UTF-8 string or raw bytes depending on
// the target. Enum targets accept a declared value name in the string format;
// otherwise they are converted like int32 and must name a declared enum number.
func ScalarFromBytesOrString(value string, format domain.ParamFormat, fd protoreflect.FieldDescriptor) (protoreflect.Value, error) {
	if format == domain.FormatString && fd.Kind() == protoreflect.EnumKind {
		if ev := fd.Enum().Values().ByName(protoreflect.Name(value)); ev != nil {
			return protoreflect.ValueOfEnum(ev.Number()), nil
		}
	}
	kind := baseKind(fd.Kind())
	var (
		v   protoreflect.Value
		err error
	)
	switch {
	case kind == protoreflect.MessageKind || kind == protoreflect.GroupKind:
		return protoreflect.Value{}, fmt.Errorf("%w: field %s is a message", domain.ErrUnsupportedConversion, fd.FullName())
	case format == domain.FormatString:
		v, err = fromText(value, kind)
	case format == domain.FormatHex && isInteger(kind):
		v, err = fromHexText(value, kind)
	default:
		var b []byte
		if b, err = BytesFromEncoded(value, format); err != nil {
			return protoreflect.Value{}, err
		}
		v, err = fromBytes(b, kind)
	}
	if err != nil {
		return protoreflect.Value{}, fmt.Errorf("field %s: %w", fd.Name(), err)
	}
	return asEnum(v, fd)
}

// EncodeScalar renders one value of fd's element type as a parameter value
// which ScalarFromBytesOrString reads back into the same value. Booleans
// become "1" or "0" in the string format and enums their number.
func EncodeScalar(v protoreflect.Value, format domain.ParamFormat, fd protoreflect.FieldDescriptor) (string, error) {
	kind := fd.Kind()
	if kind == protoreflect.EnumKind {
		v = protoreflect.ValueOfInt32(int32(v.Enum()))
		kind = protoreflect.Int32Kind
	}
	switch {
	case kind == protoreflect.MessageKind || kind == protoreflect.GroupKind:
		return "", fmt.Errorf("%w: field %s is a message", domain.ErrUnsupportedConversion, fd.FullName())
	case format == domain.FormatString:
		return toText(v, kind), nil
	case format == domain.FormatHex && isInteger(kind):
		return toHexText(v, kind), nil
	}
	if _, ok := domain.ParseParamFormat(string(format)); !ok && format != "" {
		return "", fmt.Errorf("%w: unknown format %q", domain.ErrUnsupportedConversion, format)
	}
	return EncodeBytes(toBytes(v, kind), format), nil
}

// ListFromValues converts every value of a repeated parameter, keeping input
// order. A single non-string value which decodes to several fixed width
// elements (e.g. hex "0000000a0000000b" for an int32 field) is unpacked into
// those elements.
func ListFromValues(values []string, format domain.ParamFormat, fd protoreflect.FieldDescriptor) ([]protoreflect.Value, error) {
	if len(values) == 1 && format != domain.FormatString {
		if packed, ok, err := unpack(values[0], format, fd); ok || err != nil {
			return packed, err
		}
	}
	out := make([]protoreflect.Value, 0, len(values))
	for i, value := range values {
		v, err := ScalarFromBytesOrString(value, format, fd)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func unpack(value string, format domain.ParamFormat, fd protoreflect.FieldDescriptor) ([]protoreflect.Value, bool, error) {
	kind := baseKind(fd.Kind())
	size := packedWidth(kind)
	if size == 0 {
		return nil, false, nil
	}
	b, err := BytesFromEncoded(value, format)
	if err != nil || len(b) <= size || len(b)%size != 0 {
		// Leave it to the element-wise conversion, which reports its own errors.
		return nil, false, nil
	}
	out := make([]protoreflect.Value, 0, len(b)/size)
	for off := 0; off < len(b); off += size {
		v, err := fromBytes(b[off:off+size], kind)
		if err == nil {
			v, err = asEnum(v, fd)
		}
		if err != nil {
			return nil, true, fmt.Errorf("field %s element %d: %w", fd.Name(), off/size, err)
		}
		out = append(out, v)
	}
	return out, true, nil
}

func baseKind(kind protoreflect.Kind) protoreflect.Kind {
	if kind == protoreflect.EnumKind {
		return protoreflect.Int32Kind
	}
	return kind
}

func asEnum(v protoreflect.Value, fd protoreflect.FieldDescriptor) (protoreflect.Value, error) {
	if fd.Kind() != protoreflect.EnumKind {
		return v, nil
	}
	n := protoreflect.EnumNumber(v.Int())
	if fd.Enum().Values().ByNumber(n) == nil {
		return protoreflect.Value{}, fmt.Errorf("%w: %d is not a value of enum %s", domain.ErrUnsupportedConversion, n, fd.Enum().FullName())
	}
	return protoreflect.ValueOfEnum(n), nil
}

// intWidth returns the bit width and signedness of an integer kind.
func intWidth(kind protoreflect.Kind) (bits int, signed bool, ok bool) {
	switch kind {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return 32, true, true
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return 64, true, true
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return 32, false, true
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return 64, false, true
	}
	return 0, false, false
}

func isInteger(kind protoreflect.Kind) bool {
	_, _, ok := intWidth(kind)
	return ok
}

func packedWidth(kind protoreflect.Kind) int {
	switch kind {
	case protoreflect.BoolKind:
		return 1
	case protoreflect.FloatKind:
		return 4
	case protoreflect.DoubleKind:
		return 8
	}
	if bits, _, ok := intWidth(kind); ok {
		return bits / 8
	}
	return 0
}

func signedValue(n int64, bits int) protoreflect.Value {
	if bits == 32 {
		return protoreflect.ValueOfInt32(int32(n))
	}
	return protoreflect.ValueOfInt64(n)
}

func unsignedValue(n uint64, bits int) protoreflect.Value {
	if bits == 32 {
		return protoreflect.ValueOfUint32(uint32(n))
	}
	return protoreflect.ValueOfUint64(n)
}

func fromText(value string, kind protoreflect.Kind) (protoreflect.Value, error) {
	switch kind {
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(value), nil
	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes([]byte(value)), nil
	case protoreflect.BoolKind:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return protoreflect.Value{}, textError(value, kind, err)
		}
		return protoreflect.ValueOfBool(n != 0), nil
	case protoreflect.FloatKind:
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return protoreflect.Value{}, textError(value, kind, err)
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil
	case protoreflect.DoubleKind:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return protoreflect.Value{}, textError(value, kind, err)
		}
		return protoreflect.ValueOfFloat64(f), nil
	}
	bits, signed, ok := intWidth(kind)
	if !ok {
		return protoreflect.Value{}, fmt.Errorf("%w: cannot parse text into %s", domain.ErrUnsupportedConversion, kind)
	}
	if signed {
		n, err := strconv.ParseInt(value, 10, bits)
		if err != nil {
			return protoreflect.Value{}, textError(value, kind, err)
		}
		return signedValue(n, bits), nil
	}
	n, err := strconv.ParseUint(value, 10, bits)
	if err != nil {
		return protoreflect.Value{}, textError(value, kind, err)
	}
	return unsignedValue(n, bits), nil
}

// fromHexText parses hexadecimal text. Unsigned text for a signed target is
// read as two's complement of the target width, so "ffffffff" is -1 for int32.
func fromHexText(value string, kind protoreflect.Kind) (protoreflect.Value, error) {
	bits, signed, _ := intWidth(kind)
	text := value
	negative := strings.HasPrefix(text, "-")
	if negative {
		text = text[1:]
	}
	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	if negative {
		if !signed {
			return protoreflect.Value{}, textError(value, kind, strconv.ErrRange)
		}
		n, err := strconv.ParseInt("-"+text, 16, bits)
		if err != nil {
			return protoreflect.Value{}, textError(value, kind, err)
		}
		return signedValue(n, bits), nil
	}
	u, err := strconv.ParseUint(text, 16, bits)
	if err != nil {
		return protoreflect.Value{}, textError(value, kind, err)
	}
	if signed {
		if bits == 32 {
			return protoreflect.ValueOfInt32(int32(uint32(u))), nil
		}
		return protoreflect.ValueOfInt64(int64(u)), nil
	}
	return unsignedValue(u, bits), nil
}

func toText(v protoreflect.Value, kind protoreflect.Kind) string {
	switch kind {
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return string(v.Bytes())
	case protoreflect.BoolKind:
		if v.Bool() {
			return "1"
		}
		return "0"
	case protoreflect.FloatKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case protoreflect.DoubleKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	}
	if _, signed, _ := intWidth(kind); signed {
		return strconv.FormatInt(v.Int(), 10)
	}
	return strconv.FormatUint(v.Uint(), 10)
}

// toHexText writes signed values as two's complement of their width, the form
// fromHexText reads.
func toHexText(v protoreflect.Value, kind protoreflect.Kind) string {
	bits, signed, _ := intWidth(kind)
	switch {
	case signed && bits == 32:
		return strconv.FormatUint(uint64(uint32(int32(v.Int()))), 16)
	case signed:
		return strconv.FormatUint(uint64(v.Int()), 16)
	}
	return strconv.FormatUint(v.Uint(), 16)
}

// toBytes is the big-endian fixed width form read by fromBytes.
func toBytes(v protoreflect.Value, kind protoreflect.Kind) []byte {
	switch kind {
	case protoreflect.StringKind:
		return []byte(v.String())
	case protoreflect.BytesKind:
		return v.Bytes()
	case protoreflect.BoolKind:
		if v.Bool() {
			return []byte{1}
		}
		return []byte{0}
	case protoreflect.FloatKind:
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(v.Float())))
	case protoreflect.DoubleKind:
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(v.Float()))
	}
	bits, signed, _ := intWidth(kind)
	u := v.Uint()
	if signed {
		u = uint64(v.Int())
	}
	if bits == 32 {
		return binary.BigEndian.AppendUint32(nil, uint32(u))
	}
	return binary.BigEndian.AppendUint64(nil, u)
}

func textError(value string, kind protoreflect.Kind, err error) error {
	return fmt.Errorf("%w: cannot parse %q as %s: %v", domain.ErrEncoding, value, kind, err)
}

func fromBytes(b []byte, kind protoreflect.Kind) (protoreflect.Value, error) {
	switch kind {
	case protoreflect.StringKind:
		if !utf8.Valid(b) {
			return protoreflect.Value{}, fmt.Errorf("%w: value is not valid UTF-8", domain.ErrEncoding)
		}
		return protoreflect.ValueOfString(string(b)), nil
	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes(b), nil
	}

	if len(b) != 1 && len(b) != 2 && len(b) != 4 && len(b) != 8 {
		return protoreflect.Value{}, sizeError(b, kind)
	}
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}

	switch kind {
	case protoreflect.BoolKind:
		return protoreflect.ValueOfBool(u != 0), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		var f float64
		switch len(b) {
		case 4:
			f = float64(math.Float32frombits(uint32(u)))
		case 8:
			f = math.Float64frombits(u)
		default:
			return protoreflect.Value{}, sizeError(b, kind)
		}
		if kind == protoreflect.FloatKind {
			return protoreflect.ValueOfFloat32(float32(f)), nil
		}
		return protoreflect.ValueOfFloat64(f), nil
	}

	bits, signed, ok := intWidth(kind)
	if !ok {
		return protoreflect.Value{}, sizeError(b, kind)
	}
	if signed {
		shift := 64 - 8*len(b)
		n := int64(u<<shift) >> shift
		if bits == 32 && (n < math.MinInt32 || n > math.MaxInt32) {
			return protoreflect.Value{}, fmt.Errorf("%w: %d does not fit into %s", domain.ErrUnsupportedConversion, n, kind)
		}
		return signedValue(n, bits), nil
	}
	if bits == 32 && u > math.MaxUint32 {
		return protoreflect.Value{}, fmt.Errorf("%w: %d does not fit into %s", domain.ErrUnsupportedConversion, u, kind)
	}
	return unsignedValue(u, bits), nil
}

func sizeError(b []byte, kind protoreflect.Kind) error {
	return fmt.Errorf("%w: cannot convert %d bytes to %s", domain.ErrUnsupportedConversion, len(b), kind)
}
