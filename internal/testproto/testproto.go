// Package testproto parses the demo schema shared by the package tests.
package testproto

import (
	"sync"
	"testing"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// FileName is the virtual file name of Source.
const FileName = "demo/demo.proto"

// Source is the demo schema.
const Source = `syntax = "proto3";

package demo;

// Calculator does arithmetic on small records.
service Calculator {
  // Add returns the sum of a pair.
  rpc Add(Pair) returns (Sum);
  // Upload stores an opaque blob.
  rpc Upload(Blob) returns (Sum);
  rpc Series(Samples) returns (Sum);
  rpc Lookup(Query) returns (Sum);
  rpc Watch(Pair) returns (stream Sum);
}

// Pair of operands.
message Pair {
  int32 a = 1;
  int32 b = 2;
}

message Sum {
  int64 value = 1;
}

message Blob {
  bytes data = 1;
}

message Samples {
  repeated int32 values = 1;
}

enum Color {
  COLOR_UNSPECIFIED = 0;
  RED = 1;
  GREEN = 2;
}

message Header {
  string tile_id = 1;
  uint32 zoom = 2;
}

message Query {
  Header header = 1;
  string name = 2;
  Color color = 3;
  repeated string tags = 4;
  bool verbose = 5;
  double ratio = 6;
  bytes token = 7;
  optional int64 limit = 8;
}

message Inner {
  Header header = 1;
  int32 depth = 2;
}

message Outer {
  Header header = 1;
  Inner inner = 2;
}

message Node {
  string name = 1;
  Node child = 2;
}

message Batch {
  repeated Pair pairs = 1;
}

message Wrapped {
  string id = 1;
  Batch batch = 2;
}

message Labels {
  map<string, string> labels = 1;
}

message Choice {
  oneof kind {
    Pair pair = 1;
    string text = 2;
  }
}

message Scalars {
  bool b = 1;
  int32 i32 = 2;
  sint32 s32 = 3;
  sfixed32 sf32 = 4;
  int64 i64 = 5;
  sint64 s64 = 6;
  sfixed64 sf64 = 7;
  uint32 u32 = 8;
  fixed32 f32 = 9;
  uint64 u64 = 10;
  fixed64 f64 = 11;
  float fl = 12;
  double db = 13;
  string str = 14;
  bytes raw = 15;
  Color color = 16;
  repeated Color colors = 17;
  repeated bool flags = 18;
  repeated double points = 19;
}
`

var (
	once   sync.Once
	parsed *desc.FileDescriptor
	err    error
)

// File returns the parsed demo file. It is parsed once per test binary so
// descriptors keep their identity across tests.
func File(t testing.TB) *desc.FileDescriptor {
	t.Helper()
	once.Do(func() {
		parser := protoparse.Parser{
			Accessor:              protoparse.FileContentsFromMap(map[string]string{FileName: Source}),
			IncludeSourceCodeInfo: true,
		}
		var fds []*desc.FileDescriptor
		fds, err = parser.ParseFiles(FileName)
		if err == nil {
			parsed = fds[0]
		}
	})
	require.NoError(t, err, "parse demo schema")
	return parsed
}

// Message returns the demo message with the given short name.
func Message(t testing.TB, name string) protoreflect.MessageDescriptor {
	t.Helper()
	md := File(t).FindMessage("demo." + name)
	require.NotNil(t, md, "message demo.%s", name)
	return md.UnwrapMessage()
}

// Service returns the Calculator service.
func Service(t testing.TB) *desc.ServiceDescriptor {
	t.Helper()
	sd := File(t).FindService("demo.Calculator")
	require.NotNil(t, sd)
	return sd
}
