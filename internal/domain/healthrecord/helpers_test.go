package healthrecord

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	v11  = PlatformVersion{Major: 11}
	v13  = PlatformVersion{Major: 13, Minor: 7}
	v14  = PlatformVersion{Major: 14}
	v143 = PlatformVersion{Major: 14, Minor: 3}
	v16  = PlatformVersion{Major: 16, Minor: 1}
)

func header(id TypeIdentifier, start time.Time) SampleHeader {
	return SampleHeader{UUID: uuid.New(), SampleType: id, StartDate: start, EndDate: start}
}

func labResult(t *testing.T, data string) *ClinicalRecord {
	t.Helper()
	u, err := url.Parse("https://fhir.example.org/Observation/obs-1")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return &ClinicalRecord{
		SampleHeader: header(LabResultRecord, time.Date(2022, 4, 10, 10, 12, 13, 0, time.UTC)),
		DisplayName:  "Hemoglobin A1c",
		Resource: &FHIRResource{
			ResourceType: "Observation",
			Identifier:   "obs-1",
			Version:      "4.0.1",
			SourceURL:    u,
			Data:         []byte(data),
		},
	}
}

func pregnancy(start time.Time, value int) *CategorySample {
	return &CategorySample{SampleHeader: header(Pregnancy, start), Value: value}
}

func bloodPressure(at time.Time, systolic, diastolic float64, unit Unit) *Correlation {
	return &Correlation{
		SampleHeader: header(BloodPressure, at),
		Objects: []*QuantitySample{
			{SampleHeader: header(BloodPressureSystolic, at), Quantity: Quantity{Value: systolic, Unit: unit}},
			{SampleHeader: header(BloodPressureDiastolic, at), Quantity: Quantity{Value: diastolic, Unit: unit}},
		},
	}
}

type queryResult struct {
	records []ConvertedRecord
	err     error
}

// queryAndWait runs QueryByType and waits for its completion.
func queryAndWait(t *testing.T, o *Orchestrator, kind Kind, id string) ([]ConvertedRecord, error) {
	t.Helper()
	done := make(chan queryResult, 1)
	o.QueryByType(context.Background(), kind, id, func(records []ConvertedRecord, err error) {
		done <- queryResult{records, err}
	})
	select {
	case r := <-done:
		return r.records, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("query never completed")
		return nil, nil
	}
}

func newTestOrchestrator(store Store) *Orchestrator {
	return NewOrchestrator(store, zerolog.Nop(), nil)
}
