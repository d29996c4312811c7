package healthrecord

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/healthbridge/internal/platform/fhir"
)

// Fixture is the JSON document a MemoryStore can be seeded from.
type Fixture struct {
	PlatformVersion     string          `json:"platformVersion"`
	HealthDataAvailable *bool           `json:"healthDataAvailable,omitempty"`
	DateOfBirth         string          `json:"dateOfBirth,omitempty"`
	BiologicalSex       string          `json:"biologicalSex,omitempty"`
	Samples             []FixtureSample `json:"samples"`
}

// FixtureSample is one sample of any shape. Which fields apply depends on the
// kind sampleType belongs to.
type FixtureSample struct {
	UUID           string          `json:"uuid,omitempty"`
	SampleType     string          `json:"sampleType"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Device         *Device         `json:"device,omitempty"`
	SourceRevision *SourceRevision `json:"sourceRevision,omitempty"`

	// Clinical records.
	DisplayName string          `json:"displayName,omitempty"`
	FHIRVersion string          `json:"fhirVersion,omitempty"`
	SourceURL   string          `json:"sourceUrl,omitempty"`
	Resource    json.RawMessage `json:"resource,omitempty"`

	// Category samples.
	Value int `json:"value,omitempty"`

	// Quantity samples.
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`

	// Correlations.
	Objects []FixtureSample `json:"objects,omitempty"`
}

// LoadFixture reads a fixture file and builds a MemoryStore from it. When the
// fixture does not name a platform version, fallback is used.
func LoadFixture(path string, fallback PlatformVersion) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return fx.Store(fallback)
}

// Store builds a MemoryStore holding the fixture's data.
func (fx Fixture) Store(fallback PlatformVersion) (*MemoryStore, error) {
	version := fallback
	if fx.PlatformVersion != "" {
		v, err := ParsePlatformVersion(fx.PlatformVersion)
		if err != nil {
			return nil, err
		}
		version = v
	}

	store := NewMemoryStore(version)
	if fx.HealthDataAvailable != nil {
		store.SetAvailable(*fx.HealthDataAvailable)
	}
	if fx.DateOfBirth != "" {
		dob, err := ParsePartialDate(fx.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("dateOfBirth: %w", err)
		}
		store.SetDateOfBirth(dob)
	}
	if fx.BiologicalSex != "" {
		store.SetBiologicalSex(ParseBiologicalSex(fx.BiologicalSex))
	}
	for i, fs := range fx.Samples {
		s, err := fs.sample()
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		store.Add(s)
	}
	return store, nil
}

func (fs FixtureSample) header() (SampleHeader, error) {
	h := SampleHeader{
		SampleType:     TypeIdentifier(fs.SampleType),
		StartDate:      fs.StartDate,
		EndDate:        fs.EndDate,
		Metadata:       fs.Metadata,
		Device:         fs.Device,
		SourceRevision: fs.SourceRevision,
	}
	if fs.UUID == "" {
		h.UUID = uuid.New()
		return h, nil
	}
	id, err := uuid.Parse(fs.UUID)
	if err != nil {
		return h, fmt.Errorf("invalid uuid %q: %w", fs.UUID, err)
	}
	h.UUID = id
	return h, nil
}

func (fs FixtureSample) sample() (Sample, error) {
	h, err := fs.header()
	if err != nil {
		return nil, err
	}
	id := TypeIdentifier(fs.SampleType)
	switch {
	case strings.HasPrefix(fs.SampleType, "HKClinicalTypeIdentifier"):
		rec := &ClinicalRecord{SampleHeader: h, DisplayName: fs.DisplayName}
		if len(fs.Resource) > 0 {
			res := &FHIRResource{Version: fs.FHIRVersion, Data: []byte(fs.Resource)}
			var head struct {
				ResourceType string `json:"resourceType"`
				ID           string `json:"id"`
			}
			if err := json.Unmarshal(fs.Resource, &head); err == nil {
				res.ResourceType, res.Identifier = head.ResourceType, head.ID
			}
			if fs.SourceURL != "" {
				u, err := url.Parse(fs.SourceURL)
				if err != nil {
					return nil, fmt.Errorf("invalid sourceUrl %q: %w", fs.SourceURL, err)
				}
				res.SourceURL = u
			}
			rec.Resource = res
		}
		return rec, nil
	case strings.HasPrefix(fs.SampleType, "HKCategoryTypeIdentifier"):
		return &CategorySample{SampleHeader: h, Value: fs.Value}, nil
	case strings.HasPrefix(fs.SampleType, "HKQuantityTypeIdentifier"):
		return &QuantitySample{SampleHeader: h, Quantity: Quantity{Value: fs.Quantity, Unit: Unit(fs.Unit)}}, nil
	case strings.HasPrefix(fs.SampleType, "HKCorrelationTypeIdentifier"):
		c := &Correlation{SampleHeader: h}
		for j, o := range fs.Objects {
			s, err := o.sample()
			if err != nil {
				return nil, fmt.Errorf("object %d: %w", j, err)
			}
			q, ok := s.(*QuantitySample)
			if !ok {
				return nil, fmt.Errorf("object %d: correlation components must be quantity samples", j)
			}
			c.Objects = append(c.Objects, q)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown sample type %q", id)
	}
}

// ParsePartialDate parses "YYYY", "YYYY-MM" or "YYYY-MM-DD".
func ParsePartialDate(s string) (fhir.DateValue, error) {
	parts := strings.Split(s, "-")
	if len(parts) > 3 {
		return fhir.DateValue{}, fmt.Errorf("invalid date %q", s)
	}
	var nums []int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fhir.DateValue{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		nums = append(nums, n)
	}
	v := fhir.DateValue{Year: fhir.Int(nums[0]), Calendar: fhir.CalendarGregorian}
	if len(nums) > 1 {
		v.Month = fhir.Int(nums[1])
	}
	if len(nums) > 2 {
		v.Day = fhir.Int(nums[2])
	}
	return v, nil
}
