// Package bloodtype defines the ABO/Rh blood type value and the donor
// compatibility table.
package bloodtype

import dErrors "lifelink/pkg/domain-errors"

// BloodType is one of the eight ABO/Rh types. The string values are part of
// the wire contract and must match the persisted enumeration exactly.
type BloodType string

const (
	APositive  BloodType = "A+"
	ANegative  BloodType = "A-"
	BPositive  BloodType = "B+"
	BNegative  BloodType = "B-"
	ABPositive BloodType = "AB+"
	ABNegative BloodType = "AB-"
	OPositive  BloodType = "O+"
	ONegative  BloodType = "O-"
)

// All lists every valid blood type in stable display order.
var All = []BloodType{APositive, ANegative, BPositive, BNegative, ABPositive, ABNegative, OPositive, ONegative}

// compatibility maps a recipient's type to the donor types that may give to it.
var compatibility = map[BloodType][]BloodType{
	APositive:  {APositive, ANegative, OPositive, ONegative},
	ANegative:  {ANegative, ONegative},
	BPositive:  {BPositive, BNegative, OPositive, ONegative},
	BNegative:  {BNegative, ONegative},
	ABPositive: {APositive, ANegative, BPositive, BNegative, ABPositive, ABNegative, OPositive, ONegative},
	ABNegative: {ANegative, BNegative, ABNegative, ONegative},
	OPositive:  {OPositive, ONegative},
	ONegative:  {ONegative},
}

// CompatibleDonorTypes returns the donor types permitted to give to the
// requested recipient type. Unknown input yields an empty slice rather than
// an error; the caller simply finds zero candidates.
func CompatibleDonorTypes(requested BloodType) []BloodType {
	types := compatibility[requested]
	out := make([]BloodType, len(types))
	copy(out, types)
	return out
}

// Parse constructs a BloodType from external input.
//
// Usage: call from handlers when parsing requests; direct casting bypasses
// validation.
func Parse(s string) (BloodType, error) {
	bt := BloodType(s)
	if !bt.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid blood type")
	}
	return bt, nil
}

// IsValid checks that the value is one of the eight supported types.
func (b BloodType) IsValid() bool {
	_, ok := compatibility[b]
	return ok
}

// String returns the wire representation.
func (b BloodType) String() string {
	return string(b)
}
