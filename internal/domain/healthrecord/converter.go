package healthrecord

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/ehr/healthbridge/internal/platform/fhir"
)

// ConvertedRecord is the flat wire shape of a record. A nil value is sent as null.
type ConvertedRecord map[string]*string

// Get returns the value of key, or "" when it is null or absent.
func (r ConvertedRecord) Get(key string) string {
	if v := r[key]; v != nil {
		return *v
	}
	return ""
}

func str(s string) *string { return &s }

// Wire keys.
const (
	KeyFHIRVersion    = "fhirVersion"
	KeySourceURL      = "sourceUrl"
	KeyResource       = "resource"
	KeyUUID           = "uuid"
	KeySampleType     = "sampleType"
	KeyValue          = "value"
	KeyStartDate      = "startDate"
	KeyEndDate        = "endDate"
	KeySystolicValue  = "systolicValue"
	KeyDiastolicValue = "diastolicValue"
	KeyEffectiveDate  = "effectiveDate"
	KeyEncoded        = "encoded"
)

const valueUnknown = "unknown"

// categoryValueNames decodes category values per sub-kind. Sub-kinds and values
// not listed decode to "unknown".
var categoryValueNames = map[TypeIdentifier]map[int]string{
	Pregnancy: {0: "notApplicable"},
}

// Converter turns samples into ConvertedRecords. Output that depends on the
// platform (FHIR release tagging) is decided by the version it was built with.
type Converter struct {
	version PlatformVersion
}

// NewConverter creates a Converter for a store running the given platform version.
func NewConverter(version PlatformVersion) *Converter {
	return &Converter{version: version}
}

// ConvertFunc converts one sample, returning nil when it does not have the
// expected shape.
type ConvertFunc func(Sample) ConvertedRecord

// For returns the converter used for kind, or nil for kinds with no record shape.
func (c *Converter) For(kind Kind) ConvertFunc {
	switch kind {
	case KindClinical:
		return c.Clinical
	case KindCategory:
		return c.Category
	case KindCorrelation:
		return c.Correlation
	default:
		return nil
	}
}

// Clinical converts a clinical record. The document is decoded as UTF-8 text;
// a record whose document is not valid UTF-8 is dropped.
func (c *Converter) Clinical(s Sample) ConvertedRecord {
	record, ok := s.(*ClinicalRecord)
	if !ok || record == nil {
		return nil
	}
	out := ConvertedRecord{
		KeyFHIRVersion: str(c.fhirRelease(record.Resource).String()),
		KeySourceURL:   nil,
		KeyResource:    nil,
	}
	if res := record.Resource; res != nil {
		if !utf8.Valid(res.Data) {
			return nil
		}
		out[KeyResource] = str(string(res.Data))
		if res.SourceURL != nil {
			out[KeySourceURL] = str(res.SourceURL.String())
		}
	}
	return out
}

func (c *Converter) fhirRelease(res *FHIRResource) fhir.Release {
	if !c.version.AtLeast(minFHIRRelease) {
		return fhir.DSTU2
	}
	if res == nil {
		return fhir.ReleaseUnknown
	}
	return fhir.ReleaseForVersion(res.Version)
}

// Category converts a category sample. Start and end dates are date-only.
func (c *Converter) Category(s Sample) ConvertedRecord {
	record, ok := s.(*CategorySample)
	if !ok || record == nil {
		return nil
	}
	value := valueUnknown
	if name, ok := categoryValueNames[record.SampleType][record.Value]; ok {
		value = name
	}
	return ConvertedRecord{
		KeyUUID:       str(record.UUIDString()),
		KeySampleType: str(string(record.SampleType)),
		KeyValue:      str(value),
		KeyStartDate:  str(fhir.FormatInstantDate(record.StartDate)),
		KeyEndDate:    str(fhir.FormatInstantDate(record.EndDate)),
		KeyEncoded:    str(encodeMetadata(record.Metadata)),
	}
}

// Correlation converts a correlation. Only blood pressure carries values; the
// first systolic and diastolic components are reported in mmHg.
func (c *Converter) Correlation(s Sample) ConvertedRecord {
	record, ok := s.(*Correlation)
	if !ok || record == nil {
		return nil
	}
	systolic, diastolic := valueUnknown, valueUnknown
	if record.SampleType == BloodPressure {
		sys, sysOK := firstValue(record, BloodPressureSystolic)
		dia, diaOK := firstValue(record, BloodPressureDiastolic)
		if sysOK && diaOK {
			systolic = fmt.Sprintf("%f", sys)
			diastolic = fmt.Sprintf("%f", dia)
		}
	}
	return ConvertedRecord{
		KeyUUID:           str(record.UUIDString()),
		KeySampleType:     str(string(record.SampleType)),
		KeySystolicValue:  str(systolic),
		KeyDiastolicValue: str(diastolic),
		KeyEffectiveDate:  str(fhir.FormatInstant(record.StartDate)),
		KeyEncoded:        str(encodeMetadata(record.Metadata)),
	}
}

func firstValue(c *Correlation, id TypeIdentifier) (float64, bool) {
	objects := c.ObjectsOfType(id)
	if len(objects) == 0 {
		return 0, false
	}
	return objects[0].Quantity.ValueIn(UnitMillimeterOfMercury)
}

// encodeMetadata renders metadata as JSON text. It never fails: absent metadata
// is "null" and unencodable metadata is a quoted diagnostic string.
func encodeMetadata(metadata map[string]any) string {
	if metadata == nil {
		return "null"
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return `"metadata could not be converted to JSON"`
	}
	return string(data)
}
