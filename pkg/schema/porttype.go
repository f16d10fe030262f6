package schema

// PortType is the semantic data kind carried by a port.
type PortType string

const (
	PortTypeImage     PortType = "image"
	PortTypeVideo     PortType = "video"
	PortTypeAudio     PortType = "audio"
	PortTypeText      PortType = "text"
	PortTypeCharacter PortType = "character"
	PortTypeMesh3D    PortType = "mesh3d"
	PortTypeGarment   PortType = "garment"
	PortTypeScene     PortType = "scene"
	PortTypeMoodboard PortType = "moodboard"

	// PortTypeAny is the universal wildcard: it accepts every type, and
	// unknown types from malformed template data degrade to it rather
	// than failing.
	PortTypeAny PortType = "any"
)

// portMeta holds display metadata for a port type.
type portMeta struct {
	Color string
}

var portRegistry = map[PortType]portMeta{
	PortTypeImage:     {Color: "#4F9CF9"},
	PortTypeVideo:     {Color: "#9B59F6"},
	PortTypeAudio:     {Color: "#F97316"},
	PortTypeText:      {Color: "#34D399"},
	PortTypeCharacter: {Color: "#F472B6"},
	PortTypeMesh3D:    {Color: "#FBBF24"},
	PortTypeGarment:   {Color: "#E879F9"},
	PortTypeScene:     {Color: "#22D3EE"},
	PortTypeMoodboard: {Color: "#A3E635"},
	PortTypeAny:       {Color: "#9CA3AF"},
}

// Registered reports whether t is a known port type.
func Registered(t PortType) bool {
	_, ok := portRegistry[t]
	return ok
}

// NormalizePortType maps unknown types to PortTypeAny.
func NormalizePortType(t PortType) PortType {
	if Registered(t) {
		return t
	}
	return PortTypeAny
}

// ColorOf returns the display color for a port type. Unknown types get the
// neutral wildcard color.
func ColorOf(t PortType) string {
	if m, ok := portRegistry[t]; ok {
		return m.Color
	}
	return portRegistry[PortTypeAny].Color
}

// Compatible reports whether a source port type may feed a target port type.
// Types match when identical, or when either side is the wildcard after
// normalizing unknown types to it.
func Compatible(source, target PortType) bool {
	source = NormalizePortType(source)
	target = NormalizePortType(target)
	return source == target || target == PortTypeAny || source == PortTypeAny
}
