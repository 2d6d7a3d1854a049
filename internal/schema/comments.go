package schema

import (
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Comment returns the leading source comment of d, or "" when the file was
// built without source info.
func Comment(d protoreflect.Descriptor) string {
	file := d.ParentFile()
	if file == nil {
		return ""
	}
	loc := file.SourceLocations().ByDescriptor(d)
	return CleanComment(loc.LeadingComments)
}

// CleanComment trims the indentation protoc leaves on every comment line.
func CleanComment(comment string) string {
	lines := strings.Split(strings.TrimSpace(comment), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
