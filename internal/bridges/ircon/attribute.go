package ircon

import "strings"

// Sentinel is the value reported for an attribute before anything is known
// about it, and after a reset.
const Sentinel = "unknown"

// MaxValueLength bounds every cached attribute value in bytes. Longer values
// are truncated.
const MaxValueLength = 32

// Attribute is one of the four controllable device properties.
type Attribute int

// Recognised attributes, in canonical order.
const (
	AttrMode Attribute = iota
	AttrTemperature
	AttrPower
	AttrAngle

	attributeCount = iota
)

var attributeNames = [attributeCount]string{
	AttrMode:        "mode",
	AttrTemperature: "temperature",
	AttrPower:       "power",
	AttrAngle:       "angle",
}

// attributeByName is the exact, case-sensitive column name lookup table.
var attributeByName = map[string]Attribute{
	"mode":        AttrMode,
	"temperature": AttrTemperature,
	"power":       AttrPower,
	"angle":       AttrAngle,
}

// String returns the wire name of the attribute.
func (a Attribute) String() string {
	if a < 0 || int(a) >= attributeCount {
		return "invalid"
	}
	return attributeNames[a]
}

// Attributes returns all recognised attributes in canonical order.
func Attributes() []Attribute {
	return []Attribute{AttrMode, AttrTemperature, AttrPower, AttrAngle}
}

// AttributeNames returns the wire names of all attributes in canonical order.
func AttributeNames() []string {
	names := make([]string, attributeCount)
	copy(names, attributeNames[:])
	return names
}

// LookupAttribute resolves a column name to an attribute using exact,
// case-sensitive matching.
func LookupAttribute(name string) (Attribute, bool) {
	a, ok := attributeByName[name]
	return a, ok
}

// MatchMode selects how column names are matched to attributes on the write
// path. Reads always match exactly.
type MatchMode int

const (
	// MatchExact requires the column name to equal the attribute name.
	MatchExact MatchMode = iota

	// MatchPrefix accepts any column name that is a prefix of an attribute
	// name, checking mode, temperature, power and angle in that order. An
	// empty column name therefore matches mode. This reproduces the legacy
	// storage engine comparison bounded by the column name length.
	MatchPrefix
)

// ParseMatchMode converts a configuration string to a MatchMode.
// Unrecognised values fall back to MatchExact.
func ParseMatchMode(s string) MatchMode {
	if strings.EqualFold(strings.TrimSpace(s), "prefix") {
		return MatchPrefix
	}
	return MatchExact
}

// String returns the configuration name of the match mode.
func (m MatchMode) String() string {
	if m == MatchPrefix {
		return "prefix"
	}
	return "exact"
}

func (m MatchMode) lookup(name string) (Attribute, bool) {
	if m != MatchPrefix {
		return LookupAttribute(name)
	}
	for _, a := range Attributes() {
		if strings.HasPrefix(attributeNames[a], name) {
			return a, true
		}
	}
	return 0, false
}

// boundValue truncates v to MaxValueLength bytes.
func boundValue(v string) string {
	if len(v) > MaxValueLength {
		return v[:MaxValueLength]
	}
	return v
}
