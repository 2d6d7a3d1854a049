package codec_test

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/i2y/protoswag/internal/codec"
	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/testproto"
)

func field(t *testing.T, message, name string) protoreflect.FieldDescriptor {
	t.Helper()
	fd := testproto.Message(t, message).Fields().ByName(protoreflect.Name(name))
	require.NotNil(t, fd, "%s.%s", message, name)
	return fd
}

func TestBytesFromEncoded(t *testing.T) {
	deadbeef := []byte{0xde, 0xad, 0xbe, 0xef}

	tests := []struct {
		name    string
		value   string
		format  domain.ParamFormat
		want    []byte
		wantErr error
	}{
		{name: "base64", value: "3q2+7w==", format: domain.FormatBase64, want: deadbeef},
		{name: "byte is base64", value: "3q2+7w==", format: domain.FormatByte, want: deadbeef},
		{name: "base64url raw", value: "3q2-7w", format: domain.FormatBase64URL, want: deadbeef},
		{name: "base64url padded", value: "3q2-7w==", format: domain.FormatBase64URL, want: deadbeef},
		{name: "hex", value: "deadbeef", format: domain.FormatHex, want: deadbeef},
		{name: "hex upper case", value: "DEADBEEF", format: domain.FormatHex, want: deadbeef},
		{name: "string passes through", value: "abc", format: domain.FormatString, want: []byte("abc")},
		{name: "binary passes through", value: "\xde\xad", format: domain.FormatBinary, want: []byte{0xde, 0xad}},
		{name: "empty hex", value: "", format: domain.FormatHex, want: []byte{}},
		{name: "odd length hex", value: "abc", format: domain.FormatHex, wantErr: domain.ErrEncoding},
		{name: "invalid hex digit", value: "zz", format: domain.FormatHex, wantErr: domain.ErrEncoding},
		{name: "invalid base64 alphabet", value: "!!!!", format: domain.FormatBase64, wantErr: domain.ErrEncoding},
		{name: "unpadded std base64", value: "3q2+7w", format: domain.FormatBase64, wantErr: domain.ErrEncoding},
		{name: "std alphabet in base64url", value: "3q2+7w", format: domain.FormatBase64URL, wantErr: domain.ErrEncoding},
		{name: "non-canonical trailing bits", value: "3q2+7x==", format: domain.FormatBase64, wantErr: domain.ErrEncoding},
		{name: "unknown format", value: "x", format: "octal", wantErr: domain.ErrUnsupportedConversion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.BytesFromEncoded(tt.value, tt.format)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBytesFromEncoded_InvertsStandardEncodings(t *testing.T) {
	samples := [][]byte{
		{},
		{0x00},
		{0xff, 0xfe},
		{0xde, 0xad, 0xbe, 0xef},
		[]byte("hello, world"),
		{0xfb, 0xff, 0xbf, 0x00, 0x01},
	}
	for _, format := range []domain.ParamFormat{domain.FormatBase64, domain.FormatByte, domain.FormatBase64URL, domain.FormatHex, domain.FormatBinary} {
		for _, b := range samples {
			got, err := codec.BytesFromEncoded(codec.EncodeBytes(b, format), format)
			require.NoError(t, err, "%s %x", format, b)
			assert.Equal(t, b, []byte(got), "%s %x", format, b)
		}
	}
	for _, b := range samples {
		got, err := codec.BytesFromEncoded(base64.URLEncoding.EncodeToString(b), domain.FormatBase64URL)
		require.NoError(t, err)
		assert.Equal(t, b, []byte(got))
	}
}

func bigEndian(n uint64, width int) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return string(buf[8-width:])
}

func TestScalarFromBytesOrString_BinarySignedRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value int64
		width int
	}{
		{name: "int8 into int64", field: "i64", value: -128, width: 1},
		{name: "int16 into int64", field: "i64", value: -300, width: 2},
		{name: "int32 into int64", field: "i64", value: math.MinInt32, width: 4},
		{name: "int64", field: "sf64", value: math.MinInt64, width: 8},
		{name: "int64 max", field: "s64", value: math.MaxInt64, width: 8},
		{name: "int8 into int32", field: "i32", value: -1, width: 1},
		{name: "int16 into sint32", field: "s32", value: 12345, width: 2},
		{name: "int32", field: "sf32", value: math.MaxInt32, width: 4},
		{name: "int64 which fits int32", field: "i32", value: -7, width: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := field(t, "Scalars", tt.field)
			raw := bigEndian(uint64(tt.value), tt.width)

			v, err := codec.ScalarFromBytesOrString(raw, domain.FormatBinary, fd)
			require.NoError(t, err)
			assert.Equal(t, tt.value, v.Int())

			v, err = codec.ScalarFromBytesOrString(base64.StdEncoding.EncodeToString([]byte(raw)), domain.FormatBase64, fd)
			require.NoError(t, err)
			assert.Equal(t, tt.value, v.Int())
		})
	}
}

func TestScalarFromBytesOrString_Binary(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		format  domain.ParamFormat
		check   func(t *testing.T, v protoreflect.Value)
		wantErr error
	}{
		{
			name: "float from 4 bytes", field: "fl", value: bigEndian(uint64(math.Float32bits(1.5)), 4), format: domain.FormatBinary,
			check: func(t *testing.T, v protoreflect.Value) { assert.Equal(t, 1.5, v.Float()) },
		},
		{
			name: "double from 8 bytes", field: "db", value: bigEndian(math.Float64bits(-2.25), 8), format: domain.FormatBinary,
			check: func(t *testing.T, v protoreflect.Value) { assert.Equal(t, -2.25, v.Float()) },
		},
		{
			name: "double from 4 bytes", field: "db", value: bigEndian(uint64(math.Float32bits(0.5)), 4), format: domain.FormatBinary,
			check: func(t *testing.T, v protoreflect.Value) { assert.Equal(t, 0.5, v.Float()) },
		},
		{
			name: "unsigned 32 bit", field: "u32", value: "ffffffff", format: domain.FormatHex,
			check: func(t *testing.T, v protoreflect.Value) { assert.Equal(t, uint64(math.MaxUint32), v.Uint()) },
		},
		{
			name: "unsigned 64 bit from base64", field: "f64", value: base64.StdEncoding.EncodeToString([]byte(bigEndian(math.MaxUint64, 8))), format: domain.FormatBase64,
			check: func(t *testing.T, v protoreflect.Value) { assert.Equal(t, uint64(math.MaxUint64), v.Uint()) },
		},
		{
			name: "bool true", field: "b", value: "\x01", format: domain.FormatBinary,
			check: func(t *testing.T, v protoreflect.Value) { assert.True(t, v.Bool()) },
		},
		{
			name: "bool false", field: "b", value: "AA==", format: domain.FormatBase64,
			check: func(t *testing.T, v protoreflect.Value) { assert.False(t, v.Bool()) },
		},
		{
			name: "string from binary", field: "str", value: "héllo", format: domain.FormatBinary,
			check: func(t *testing.T, v protoreflect.Value) { assert.Equal(t, "héllo", v.String()) },
		},
		{
			name: "string from base64url", field: "str", value: "aGk", format: domain.FormatBase64URL,
			check: func(t *testing.T, v protoreflect.Value) { assert.Equal(t, "hi", v.String()) },
		},
		{
			name: "bytes from hex", field: "raw", value: "00ff", format: domain.FormatHex,
			check: func(t *testing.T, v protoreflect.Value) { assert.Equal(t, []byte{0x00, 0xff}, v.Bytes()) },
		},
		{name: "invalid utf-8", field: "str", value: "/w==", format: domain.FormatBase64, wantErr: domain.ErrEncoding},
		{name: "three bytes", field: "i32", value: "\x01\x02\x03", format: domain.FormatBinary, wantErr: domain.ErrUnsupportedConversion},
		{name: "int64 out of int32 range", field: "i32", value: bigEndian(1<<40, 8), format: domain.FormatBinary, wantErr: domain.ErrUnsupportedConversion},
		{name: "uint64 out of uint32 range", field: "u32", value: bigEndian(1<<40, 8), format: domain.FormatBinary, wantErr: domain.ErrUnsupportedConversion},
		{name: "float from 2 bytes", field: "fl", value: "\x00\x01", format: domain.FormatBinary, wantErr: domain.ErrUnsupportedConversion},
		{name: "malformed base64", field: "i32", value: "%%%", format: domain.FormatBase64, wantErr: domain.ErrEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := codec.ScalarFromBytesOrString(tt.value, tt.format, field(t, "Scalars", tt.field))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, v)
		})
	}
}

func TestScalarFromBytesOrString_String(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		want    any
		wantErr error
	}{
		{name: "bool one", field: "b", value: "1", want: true},
		{name: "bool zero", field: "b", value: "0", want: false},
		{name: "bool any non-zero", field: "b", value: "2", want: true},
		{name: "bool word", field: "b", value: "true", wantErr: domain.ErrEncoding},
		{name: "int32", field: "i32", value: "-5", want: int64(-5)},
		{name: "int32 overflow", field: "i32", value: "3000000000", wantErr: domain.ErrEncoding},
		{name: "sint64", field: "s64", value: "-9000000000", want: int64(-9000000000)},
		{name: "uint64 max", field: "u64", value: "18446744073709551615", want: uint64(math.MaxUint64)},
		{name: "negative unsigned", field: "u32", value: "-1", wantErr: domain.ErrEncoding},
		{name: "float", field: "fl", value: "1.5", want: 1.5},
		{name: "double", field: "db", value: "2.25", want: 2.25},
		{name: "double garbage", field: "db", value: "two", wantErr: domain.ErrEncoding},
		{name: "string", field: "str", value: "hello", want: "hello"},
		{name: "bytes", field: "raw", value: "ab", want: []byte("ab")},
		{name: "enum by number", field: "color", value: "1", want: protoreflect.EnumNumber(1)},
		{name: "undeclared enum number", field: "color", value: "7", wantErr: domain.ErrUnsupportedConversion},
		{name: "enum by name", field: "color", value: "RED", want: protoreflect.EnumNumber(1)},
		{name: "undeclared enum name", field: "color", value: "BLUE", wantErr: domain.ErrEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := codec.ScalarFromBytesOrString(tt.value, domain.FormatString, field(t, "Scalars", tt.field))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, domain.IsClientError(err))
				return
			}
			require.NoError(t, err)
			switch want := tt.want.(type) {
			case bool:
				assert.Equal(t, want, v.Bool())
			case int64:
				assert.Equal(t, want, v.Int())
			case uint64:
				assert.Equal(t, want, v.Uint())
			case float64:
				assert.Equal(t, want, v.Float())
			case string:
				assert.Equal(t, want, v.String())
			case []byte:
				assert.Equal(t, want, v.Bytes())
			case protoreflect.EnumNumber:
				assert.Equal(t, want, v.Enum())
			}
		})
	}
}

func TestScalarFromBytesOrString_HexInteger(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		want    int64
		wantErr error
	}{
		{name: "prefixed", field: "i32", value: "0x1f", want: 31},
		{name: "two's complement", field: "i32", value: "ffffffff", want: -1},
		{name: "negative text", field: "i64", value: "-10", want: -16},
		{name: "short value", field: "i64", value: "a", want: 10},
		{name: "enum", field: "color", value: "02", want: 2},
		{name: "too wide", field: "i32", value: "1ffffffff", wantErr: domain.ErrEncoding},
		{name: "negative unsigned", field: "u32", value: "-1", wantErr: domain.ErrEncoding},
		{name: "not hex", field: "i32", value: "xyz", wantErr: domain.ErrEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := field(t, "Scalars", tt.field)
			v, err := codec.ScalarFromBytesOrString(tt.value, domain.FormatHex, fd)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if fd.Kind() == protoreflect.EnumKind {
				assert.Equal(t, protoreflect.EnumNumber(tt.want), v.Enum())
				return
			}
			assert.Equal(t, tt.want, v.Int())
		})
	}
}

func TestScalarFromBytesOrString_MessageTarget(t *testing.T) {
	_, err := codec.ScalarFromBytesOrString("x", domain.FormatString, field(t, "Query", "header"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedConversion)
}

func TestListFromValues(t *testing.T) {
	ints := func(values []protoreflect.Value) []int64 {
		out := make([]int64, 0, len(values))
		for _, v := range values {
			out = append(out, v.Int())
		}
		return out
	}

	tests := []struct {
		name    string
		message string
		field   string
		values  []string
		format  domain.ParamFormat
		want    []int64
		wantErr error
	}{
		{name: "packed hex int32", message: "Samples", field: "values", values: []string{"0000000a0000000b"}, format: domain.FormatHex, want: []int64{10, 11}},
		{name: "hex per element", message: "Samples", field: "values", values: []string{"0a", "0b"}, format: domain.FormatHex, want: []int64{10, 11}},
		{name: "single hex element", message: "Samples", field: "values", values: []string{"0000000a"}, format: domain.FormatHex, want: []int64{10}},
		{name: "text keeps order", message: "Samples", field: "values", values: []string{"3", "1", "2"}, format: domain.FormatString, want: []int64{3, 1, 2}},
		{name: "packed base64", message: "Samples", field: "values", values: []string{base64.StdEncoding.EncodeToString([]byte(bigEndian(7, 4) + bigEndian(uint64(0xfffffffe), 4)))}, format: domain.FormatBase64, want: []int64{7, -2}},
		{name: "packed enums", message: "Scalars", field: "colors", values: []string{"0000000100000002"}, format: domain.FormatHex, want: []int64{1, 2}},
		{name: "packed undeclared enum", message: "Scalars", field: "colors", values: []string{"0000000100000009"}, format: domain.FormatHex, wantErr: domain.ErrUnsupportedConversion},
		{name: "empty", message: "Samples", field: "values", values: nil, format: domain.FormatString, want: []int64{}},
		{name: "bad element", message: "Samples", field: "values", values: []string{"1", "x"}, format: domain.FormatString, wantErr: domain.ErrEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := field(t, tt.message, tt.field)
			got, err := codec.ListFromValues(tt.values, tt.format, fd)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if fd.Kind() == protoreflect.EnumKind {
				enums := make([]int64, 0, len(got))
				for _, v := range got {
					enums = append(enums, int64(v.Enum()))
				}
				assert.Equal(t, tt.want, enums)
				return
			}
			assert.Equal(t, tt.want, ints(got))
		})
	}
}

func TestListFromValues_PackedBoolsAndDoubles(t *testing.T) {
	flags, err := codec.ListFromValues([]string{"\x01\x00\x01"}, domain.FormatBinary, field(t, "Scalars", "flags"))
	require.NoError(t, err)
	require.Len(t, flags, 3)
	assert.True(t, flags[0].Bool())
	assert.False(t, flags[1].Bool())
	assert.True(t, flags[2].Bool())

	raw := bigEndian(math.Float64bits(1.25), 8) + bigEndian(math.Float64bits(-3), 8)
	points, err := codec.ListFromValues([]string{codec.EncodeBytes([]byte(raw), domain.FormatBase64URL)}, domain.FormatBase64URL, field(t, "Scalars", "points"))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 1.25, points[0].Float())
	assert.Equal(t, -3.0, points[1].Float())

	tags, err := codec.ListFromValues([]string{"b", "a"}, domain.FormatString, field(t, "Query", "tags"))
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "b", tags[0].String())
	assert.Equal(t, "a", tags[1].String())
}

func TestEncodeScalar(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		value  protoreflect.Value
		format domain.ParamFormat
		want   string
	}{
		{name: "bool as text", field: "b", value: protoreflect.ValueOfBool(true), format: domain.FormatString, want: "1"},
		{name: "negative int32 as text", field: "i32", value: protoreflect.ValueOfInt32(-5), format: domain.FormatString, want: "-5"},
		{name: "uint64 as text", field: "u64", value: protoreflect.ValueOfUint64(math.MaxUint64), format: domain.FormatString, want: "18446744073709551615"},
		{name: "float as text", field: "fl", value: protoreflect.ValueOfFloat32(1.5), format: domain.FormatString, want: "1.5"},
		{name: "enum as number", field: "color", value: protoreflect.ValueOfEnum(2), format: domain.FormatString, want: "2"},
		{name: "negative int32 as hex", field: "i32", value: protoreflect.ValueOfInt32(-1), format: domain.FormatHex, want: "ffffffff"},
		{name: "sint64 as hex", field: "s64", value: protoreflect.ValueOfInt64(31), format: domain.FormatHex, want: "1f"},
		{name: "int32 as base64", field: "i32", value: protoreflect.ValueOfInt32(10), format: domain.FormatBase64, want: "AAAACg=="},
		{name: "double as hex bytes", field: "db", value: protoreflect.ValueOfFloat64(1), format: domain.FormatHex, want: "3ff0000000000000"},
		{name: "string as base64url", field: "str", value: protoreflect.ValueOfString("hi?"), format: domain.FormatBase64URL, want: "aGk_"},
		{name: "bytes as hex", field: "raw", value: protoreflect.ValueOfBytes([]byte{0xde, 0xad}), format: domain.FormatHex, want: "dead"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := field(t, "Scalars", tt.field)
			got, err := codec.EncodeScalar(tt.value, tt.format, fd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := codec.ScalarFromBytesOrString(got, tt.format, fd)
			require.NoError(t, err)
			assert.True(t, back.Equal(tt.value), "decoded %v, want %v", back, tt.value)
		})
	}
}

func TestEncodeScalar_Errors(t *testing.T) {
	_, err := codec.EncodeScalar(protoreflect.ValueOfInt32(1), "octal", field(t, "Scalars", "i32"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedConversion)

	_, err = codec.EncodeScalar(protoreflect.Value{}, domain.FormatString, field(t, "Query", "header"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedConversion)
}
