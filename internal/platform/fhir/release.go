package fhir

import "strings"

// Release is the FHIR release a clinical document was authored against.
type Release string

const (
	// DSTU2 is FHIR DSTU2 (1.0.x).
	DSTU2 Release = "dstu2"
	// R4 is FHIR Release 4 (4.0.x).
	R4 Release = "r4"
	// ReleaseUnknown covers every other version string.
	ReleaseUnknown Release = "unknown"
)

// String returns the wire token of the release.
func (r Release) String() string {
	return string(r)
}

// ReleaseForVersion maps a FHIR semantic version ("1.0.2", "4.0.1") to its release.
func ReleaseForVersion(version string) Release {
	switch {
	case strings.HasPrefix(version, "1.0."), version == "1.0":
		return DSTU2
	case strings.HasPrefix(version, "4.0."), version == "4.0":
		return R4
	default:
		return ReleaseUnknown
	}
}
