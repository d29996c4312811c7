package healthrecord

import (
	"github.com/ehr/healthbridge/internal/platform/fhir"
)

// BiologicalSexValue is the platform's biological sex characteristic.
type BiologicalSexValue int

const (
	SexNotSet BiologicalSexValue = iota
	SexFemale
	SexMale
	SexOther
)

// GenderCode maps a biological sex to its FHIR administrative gender code.
// Not-set and unrecognised values map to "".
func (b BiologicalSexValue) GenderCode() string {
	switch b {
	case SexFemale:
		return "female"
	case SexMale:
		return "male"
	case SexOther:
		return "other"
	default:
		return ""
	}
}

// ParseBiologicalSex is the inverse of GenderCode; unknown codes are SexNotSet.
func ParseBiologicalSex(code string) BiologicalSexValue {
	switch code {
	case "female":
		return SexFemale
	case "male":
		return SexMale
	case "other":
		return SexOther
	default:
		return SexNotSet
	}
}

// Characteristics are the patient-level attributes. Both fields are always
// present on the wire; "" means the store did not have the value.
type Characteristics struct {
	Gender      string `json:"gender"`
	DateOfBirth string `json:"dateOfBirth"`
}

// Map renders c as the wire mapping.
func (c Characteristics) Map() map[string]string {
	return map[string]string{
		"gender":      c.Gender,
		"dateOfBirth": c.DateOfBirth,
	}
}

// formatDateOfBirth renders a full date of birth. A date missing its year,
// month or day renders as "".
func formatDateOfBirth(v *fhir.DateValue) string {
	if v == nil || v.Year == nil || v.Month == nil || v.Day == nil {
		return ""
	}
	return fhir.FormatDate(*v)
}
