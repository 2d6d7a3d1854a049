package domain

// WholeRequest is the field path of a parameter which carries the complete
// serialized request message instead of a single field.
const WholeRequest = "*"

// Wildcard names the configuration entry whose tags seed every method.
const Wildcard = "*"

// ContentType is the media type of serialized request and response messages.
const ContentType = "application/x-protobuf"

// RequestPartExtension is the OpenAPI vendor extension which records the
// request field path a parameter is written to.
const RequestPartExtension = "x-protobuf-request-part"

// ParamLocation is where an HTTP parameter travels.
type ParamLocation string

const (
	LocationQuery  ParamLocation = "query"
	LocationPath   ParamLocation = "path"
	LocationHeader ParamLocation = "header"
	LocationBody   ParamLocation = "body"
)

// ParseParamLocation returns the location named by s.
func ParseParamLocation(s string) (ParamLocation, bool) {
	switch l := ParamLocation(s); l {
	case LocationQuery, LocationPath, LocationHeader, LocationBody:
		return l, true
	}
	return "", false
}

// ParamFormat selects the string to bytes decoding applied to a parameter value.
type ParamFormat string

const (
	FormatString    ParamFormat = "string"
	FormatBinary    ParamFormat = "binary"
	FormatByte      ParamFormat = "byte"
	FormatBase64    ParamFormat = "base64"
	FormatBase64URL ParamFormat = "base64url"
	FormatHex       ParamFormat = "hex"
)

// ParseParamFormat returns the format named by s.
func ParseParamFormat(s string) (ParamFormat, bool) {
	switch f := ParamFormat(s); f {
	case FormatString, FormatBinary, FormatByte, FormatBase64, FormatBase64URL, FormatHex:
		return f, true
	}
	return "", false
}

// Parameter styles accepted in specifiers and documents.
const (
	StyleForm   = "form"
	StyleSimple = "simple"
	StyleLabel  = "label"
	StyleMatrix = "matrix"
)

// ParamSpec places one request field (or the whole request) into an HTTP parameter.
type ParamSpec struct {
	// Field is a dotted FieldPath or WholeRequest.
	Field  string
	Name   string
	In     ParamLocation
	Format ParamFormat
	// Style and Explode are empty/nil when the location default applies.
	Style   string
	Explode *bool
	// Default is used when the request does not carry the parameter.
	Default *string
}

// IsWholeRequest reports whether the parameter carries the complete request.
func (p ParamSpec) IsWholeRequest() bool {
	return p.Field == WholeRequest
}

// EffectiveStyle returns the configured style or the location default.
func (p ParamSpec) EffectiveStyle() string {
	if p.Style != "" {
		return p.Style
	}
	switch p.In {
	case LocationPath, LocationHeader:
		return StyleSimple
	default:
		return StyleForm
	}
}

// EffectiveExplode returns the configured explode flag or the location default.
func (p ParamSpec) EffectiveExplode() bool {
	if p.Explode != nil {
		return *p.Explode
	}
	return p.In == LocationQuery
}

// Clone returns a copy of the spec which shares no pointers with p.
func (p ParamSpec) Clone() ParamSpec {
	if p.Explode != nil {
		v := *p.Explode
		p.Explode = &v
	}
	if p.Default != nil {
		v := *p.Default
		p.Default = &v
	}
	return p
}

// CloneParams deep-copies a parameter list. A nil list stays nil.
func CloneParams(params []ParamSpec) []ParamSpec {
	if params == nil {
		return nil
	}
	out := make([]ParamSpec, len(params))
	for i, p := range params {
		out[i] = p.Clone()
	}
	return out
}

// MethodPlan is the resolved mapping of one RPC method onto an HTTP operation.
// Plans are built once during registration and only read afterwards.
type MethodPlan struct {
	Method     string
	HTTPMethod string
	Path       string
	Params     []ParamSpec
	// Security is nil when the document default applies. A pointer to the
	// empty string clears security for the operation.
	Security *string
}

// WholeRequestParam returns the parameter carrying the complete request, if
// the plan passes the request as a blob.
func (p MethodPlan) WholeRequestParam() (ParamSpec, bool) {
	if len(p.Params) == 1 && p.Params[0].IsWholeRequest() {
		return p.Params[0], true
	}
	return ParamSpec{}, false
}

// Clone returns a deep copy of the plan.
func (p MethodPlan) Clone() MethodPlan {
	c := p
	c.Params = CloneParams(p.Params)
	if p.Security != nil {
		s := *p.Security
		c.Security = &s
	}
	return c
}

// ConfigEntry is one ordered set of configuration tags, scoped to a method
// or to Wildcard.
type ConfigEntry struct {
	Method string
	Tags   []string
	// Source describes where the entry came from, for diagnostics.
	Source string
}
