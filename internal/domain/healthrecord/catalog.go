package healthrecord

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the namespace a record type identifier belongs to.
type Kind string

const (
	KindClinical       Kind = "clinical"
	KindCharacteristic Kind = "characteristic"
	KindCategory       Kind = "category"
	KindCorrelation    Kind = "correlation"
)

// TypeIdentifier names a queryable record type, e.g. a lab result record type.
type TypeIdentifier string

// Clinical record types.
const (
	AllergyRecord      TypeIdentifier = "HKClinicalTypeIdentifierAllergyRecord"
	ConditionRecord    TypeIdentifier = "HKClinicalTypeIdentifierConditionRecord"
	ImmunizationRecord TypeIdentifier = "HKClinicalTypeIdentifierImmunizationRecord"
	LabResultRecord    TypeIdentifier = "HKClinicalTypeIdentifierLabResultRecord"
	MedicationRecord   TypeIdentifier = "HKClinicalTypeIdentifierMedicationRecord"
	ProcedureRecord    TypeIdentifier = "HKClinicalTypeIdentifierProcedureRecord"
	VitalSignRecord    TypeIdentifier = "HKClinicalTypeIdentifierVitalSignRecord"
)

// Characteristic types.
const (
	DateOfBirth   TypeIdentifier = "HKCharacteristicTypeIdentifierDateOfBirth"
	BiologicalSex TypeIdentifier = "HKCharacteristicTypeIdentifierBiologicalSex"
)

// Category types.
const (
	Pregnancy TypeIdentifier = "HKCategoryTypeIdentifierPregnancy"
)

// Correlation types and the quantity types they group.
const (
	BloodPressure          TypeIdentifier = "HKCorrelationTypeIdentifierBloodPressure"
	BloodPressureSystolic  TypeIdentifier = "HKQuantityTypeIdentifierBloodPressureSystolic"
	BloodPressureDiastolic TypeIdentifier = "HKQuantityTypeIdentifierBloodPressureDiastolic"
)

// catalog lists the supported identifiers per kind in declaration order.
// Coverage records are left out; they need a newer platform than the rest.
var catalog = map[Kind][]TypeIdentifier{
	KindClinical: {
		AllergyRecord,
		ConditionRecord,
		ImmunizationRecord,
		LabResultRecord,
		MedicationRecord,
		ProcedureRecord,
		VitalSignRecord,
	},
	KindCharacteristic: {
		DateOfBirth,
		BiologicalSex,
	},
	KindCategory: {
		Pregnancy,
	},
	KindCorrelation: {
		BloodPressure,
	},
}

// kindOrder is the order kinds are unioned in when building a capability request.
var kindOrder = []Kind{KindClinical, KindCharacteristic, KindCategory, KindCorrelation}

// SupportedTypes returns the catalogued identifiers for kind. The returned
// slice is a copy; its order is stable across calls.
func SupportedTypes(kind Kind) []TypeIdentifier {
	ids := catalog[kind]
	out := make([]TypeIdentifier, len(ids))
	copy(out, ids)
	return out
}

// SupportedTypeStrings is SupportedTypes rendered as plain strings for the wire.
func SupportedTypeStrings(kind Kind) []string {
	ids := catalog[kind]
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

// Resolve looks up s in the catalog for kind. Matching is exact: no case
// folding, no prefix matching, no fallback to other kinds.
func Resolve(kind Kind, s string) (TypeIdentifier, error) {
	for _, id := range catalog[kind] {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("%s type %q: %w", kind, s, ErrTypeNotFound)
}

// PlatformVersion is the OS version reported by the health store.
type PlatformVersion struct {
	Major int
	Minor int
}

// ParsePlatformVersion parses "14", "14.3" or "14.3.1" (patch is ignored).
func ParsePlatformVersion(s string) (PlatformVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || parts[0] == "" {
		return PlatformVersion{}, fmt.Errorf("invalid platform version %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return PlatformVersion{}, fmt.Errorf("invalid platform version %q: %w", s, err)
	}
	v := PlatformVersion{Major: major}
	if len(parts) > 1 {
		if v.Minor, err = strconv.Atoi(parts[1]); err != nil {
			return PlatformVersion{}, fmt.Errorf("invalid platform version %q: %w", s, err)
		}
	}
	return v, nil
}

// AtLeast reports whether v is the same as or newer than other.
func (v PlatformVersion) AtLeast(other PlatformVersion) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

func (v PlatformVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

var (
	// minHealthRecords is the first platform that can read clinical records,
	// characteristics and correlations.
	minHealthRecords = PlatformVersion{Major: 12}
	// minFHIRRelease is the first platform that tags documents with a FHIR release.
	minFHIRRelease = PlatformVersion{Major: 14}
	// minCategory is the first platform with the pregnancy category type.
	minCategory = PlatformVersion{Major: 14, Minor: 3}
)

// KindAvailable reports whether the platform can read records of kind at all.
func KindAvailable(kind Kind, v PlatformVersion) bool {
	switch kind {
	case KindClinical, KindCharacteristic, KindCorrelation:
		return v.AtLeast(minHealthRecords)
	case KindCategory:
		return v.AtLeast(minCategory)
	default:
		return false
	}
}
