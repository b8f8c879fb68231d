package csn

import (
	"sort"
	"strings"
)

// Builtin type names.
const (
	TypeUUID        = "cds.UUID"
	TypeBoolean     = "cds.Boolean"
	TypeUInt8       = "cds.UInt8"
	TypeInt16       = "cds.Int16"
	TypeInt32       = "cds.Int32"
	TypeInteger     = "cds.Integer"
	TypeInt64       = "cds.Int64"
	TypeDecimal     = "cds.Decimal"
	TypeDouble      = "cds.Double"
	TypeDate        = "cds.Date"
	TypeTime        = "cds.Time"
	TypeDateTime    = "cds.DateTime"
	TypeTimestamp   = "cds.Timestamp"
	TypeString      = "cds.String"
	TypeLargeString = "cds.LargeString"
	TypeBinary      = "cds.Binary"
	TypeLargeBinary = "cds.LargeBinary"
	TypeVector      = "cds.Vector"
	TypeMap         = "cds.Map"

	TypeAssociation = "cds.Association"
	TypeComposition = "cds.Composition"
)

var scalarTypes = map[string]bool{
	TypeUUID:        true,
	TypeBoolean:     true,
	TypeUInt8:       true,
	TypeInt16:       true,
	TypeInt32:       true,
	TypeInteger:     true,
	TypeInt64:       true,
	TypeDecimal:     true,
	TypeDouble:      true,
	TypeDate:        true,
	TypeTime:        true,
	TypeDateTime:    true,
	TypeTimestamp:   true,
	TypeString:      true,
	TypeLargeString: true,
	TypeBinary:      true,
	TypeLargeBinary: true,
	TypeVector:      true,
	TypeMap:         true,
}

// IsScalarType reports whether t is one of the builtin scalar types.
// Association and composition are not scalar.
func IsScalarType(t string) bool {
	return scalarTypes[t]
}

// NormalizeType expands the short form ("String") to the builtin name
// ("cds.String"). Unknown names are returned unchanged with ok=false.
func NormalizeType(t string) (string, bool) {
	if t == "" {
		return "", false
	}
	full := t
	if !strings.HasPrefix(t, "cds.") {
		full = "cds." + t
	}
	if scalarTypes[full] || full == TypeAssociation || full == TypeComposition {
		return full, true
	}
	return t, false
}

// ScalarTypes returns the builtin scalar type names, sorted.
func ScalarTypes() []string {
	names := make([]string, 0, len(scalarTypes))
	for n := range scalarTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
