package healthrecord

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sample is a platform-native record returned by a store query. It is a closed
// set: *ClinicalRecord, *CategorySample, *QuantitySample and *Correlation.
// Samples belong to the query completion they were delivered to and must not be
// retained after it returns.
type Sample interface {
	Header() *SampleHeader
	sample()
}

// SampleHeader holds the fields every sample carries.
type SampleHeader struct {
	UUID           uuid.UUID
	SampleType     TypeIdentifier
	StartDate      time.Time
	EndDate        time.Time
	Metadata       map[string]any
	Device         *Device
	SourceRevision *SourceRevision
}

// Header returns the embedded header.
func (h *SampleHeader) Header() *SampleHeader { return h }

// UUIDString renders the sample UUID the way the platform does (upper case).
func (h *SampleHeader) UUIDString() string {
	return strings.ToUpper(h.UUID.String())
}

// Device describes the hardware that produced a sample.
type Device struct {
	UDIDeviceIdentifier string `json:"udiDeviceIdentifier,omitempty"`
	FirmwareVersion     string `json:"firmwareVersion,omitempty"`
	HardwareVersion     string `json:"hardwareVersion,omitempty"`
	LocalIdentifier     string `json:"localIdentifier,omitempty"`
	Manufacturer        string `json:"manufacturer,omitempty"`
	Model               string `json:"model,omitempty"`
	Name                string `json:"name,omitempty"`
	SoftwareVersion     string `json:"softwareVersion,omitempty"`
}

// SourceRevision identifies the app and OS build that saved a sample.
type SourceRevision struct {
	BundleIdentifier string `json:"bundleIdentifier"`
	Name             string `json:"name"`
	Version          string `json:"version,omitempty"`
	ProductType      string `json:"productType,omitempty"`
	OSVersion        string `json:"operatingSystemVersion,omitempty"`
}

// FHIRResource is the structured document attached to a clinical record.
type FHIRResource struct {
	ResourceType string
	Identifier   string
	// Version is the FHIR semantic version the document was authored against,
	// e.g. "4.0.1". Empty on platforms that predate release tagging.
	Version   string
	SourceURL *url.URL
	Data      []byte
}

// ClinicalRecord is a document-style record (lab result, immunization, ...).
type ClinicalRecord struct {
	SampleHeader
	DisplayName string
	Resource    *FHIRResource
}

// CategorySample is an enumerated-value record with a time range.
type CategorySample struct {
	SampleHeader
	Value int
}

// Unit is a quantity unit.
type Unit string

const (
	UnitMillimeterOfMercury Unit = "mmHg"
	UnitKilopascal          Unit = "kPa"
)

// mmHgPerKPa converts kilopascals to millimetres of mercury.
const mmHgPerKPa = 7.500615758456563

// Quantity is a numeric value with its unit.
type Quantity struct {
	Value float64
	Unit  Unit
}

// ValueIn converts q to unit. ok is false when the units are not compatible.
func (q Quantity) ValueIn(unit Unit) (v float64, ok bool) {
	switch {
	case q.Unit == unit:
		return q.Value, true
	case q.Unit == UnitKilopascal && unit == UnitMillimeterOfMercury:
		return q.Value * mmHgPerKPa, true
	case q.Unit == UnitMillimeterOfMercury && unit == UnitKilopascal:
		return q.Value / mmHgPerKPa, true
	default:
		return 0, false
	}
}

// QuantitySample is a single measurement.
type QuantitySample struct {
	SampleHeader
	Quantity Quantity
}

// Correlation groups related quantity samples, e.g. systolic and diastolic.
type Correlation struct {
	SampleHeader
	Objects []*QuantitySample
}

// ObjectsOfType returns the component samples of type id, in stored order.
func (c *Correlation) ObjectsOfType(id TypeIdentifier) []*QuantitySample {
	var out []*QuantitySample
	for _, o := range c.Objects {
		if o != nil && o.SampleType == id {
			out = append(out, o)
		}
	}
	return out
}

func (*ClinicalRecord) sample() {}
func (*CategorySample) sample() {}
func (*QuantitySample) sample() {}
func (*Correlation) sample()    {}
