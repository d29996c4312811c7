package healthrecord

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/healthbridge/internal/platform/db"
	"github.com/ehr/healthbridge/migrations"
)

func TestSampleRow_Sample(t *testing.T) {
	start := time.Date(2022, 6, 9, 15, 2, 4, 0, time.UTC)
	value := 0
	qty := 120.0
	unit := "mmHg"
	version := "4.0.1"
	source := "https://fhir.example.org/Observation/1"

	base := sampleRow{
		ID:             uuid.New(),
		StartDate:      start,
		EndDate:        start,
		Metadata:       []byte(`{"HKWasUserEntered":true}`),
		Device:         []byte(`{"name":"Cuff","manufacturer":"Acme"}`),
		SourceRevision: []byte(`not json`),
	}

	t.Run("clinical", func(t *testing.T) {
		r := base
		r.SampleType = string(LabResultRecord)
		r.FHIRVersion = &version
		r.FHIRSourceURL = &source
		r.FHIRData = []byte(`{}`)

		rec, ok := r.sample(KindClinical).(*ClinicalRecord)
		if !ok {
			t.Fatal("expected *ClinicalRecord")
		}
		if rec.Resource == nil || rec.Resource.Version != "4.0.1" || rec.Resource.SourceURL.String() != source {
			t.Fatalf("unexpected resource %+v", rec.Resource)
		}
		if rec.Device == nil || rec.Device.Manufacturer != "Acme" {
			t.Errorf("expected decoded device, got %+v", rec.Device)
		}
		if rec.SourceRevision != nil {
			t.Errorf("expected undecodable source revision to be dropped, got %+v", rec.SourceRevision)
		}
		if rec.Metadata["HKWasUserEntered"] != true {
			t.Errorf("unexpected metadata %v", rec.Metadata)
		}
	})

	t.Run("clinical without document", func(t *testing.T) {
		r := base
		r.SampleType = string(LabResultRecord)
		rec := r.sample(KindClinical).(*ClinicalRecord)
		if rec.Resource != nil {
			t.Fatalf("expected no resource, got %+v", rec.Resource)
		}
	})

	t.Run("category", func(t *testing.T) {
		r := base
		r.SampleType = string(Pregnancy)
		if r.sample(KindCategory) != nil {
			t.Fatal("expected nil without a category value")
		}
		r.CategoryValue = &value
		if _, ok := r.sample(KindCategory).(*CategorySample); !ok {
			t.Fatal("expected *CategorySample")
		}
	})

	t.Run("quantity", func(t *testing.T) {
		r := base
		r.SampleType = string(BloodPressureSystolic)
		if r.sample("") != nil {
			t.Fatal("expected nil without a quantity")
		}
		r.QuantityValue = &qty
		r.QuantityUnit = &unit
		q, ok := r.sample("").(*QuantitySample)
		if !ok {
			t.Fatal("expected *QuantitySample")
		}
		if q.Quantity.Value != 120 || q.Quantity.Unit != UnitMillimeterOfMercury {
			t.Fatalf("unexpected quantity %+v", q.Quantity)
		}
	})

	t.Run("correlation", func(t *testing.T) {
		r := base
		r.SampleType = string(BloodPressure)
		if _, ok := r.sample(KindCorrelation).(*Correlation); !ok {
			t.Fatal("expected *Correlation")
		}
	})
}

func TestPGStore_ObjectType(t *testing.T) {
	s := &PGStore{version: v16, available: true, unsupported: map[TypeIdentifier]bool{VitalSignRecord: true}}

	if _, ok := s.ObjectType(KindClinical, VitalSignRecord); ok {
		t.Fatal("expected unsupported type to fail")
	}
	ot, ok := s.ObjectType(KindClinical, LabResultRecord)
	if !ok || ot.Identifier != LabResultRecord || ot.Kind != KindClinical {
		t.Fatalf("unexpected object type %+v", ot)
	}
	if !s.IsHealthDataAvailable() || s.PlatformVersion() != v16 {
		t.Fatal("unexpected store state")
	}
}

// openTestDatabase migrates a throwaway schema and returns a pool whose
// search_path points at it. Tests are skipped without DATABASE_URL.
func openTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := "healthbridge_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	admin, err := db.NewPool(ctx, db.PoolConfig{URL: url, MaxConns: 2})
	if err != nil {
		t.Fatalf("NewPool() error: %v", err)
	}
	t.Cleanup(admin.Close)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
	})

	if _, err := db.NewMigrator(admin, migrations.FS, schema).Up(ctx); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: url, Schema: schema, MaxConns: 4})
	if err != nil {
		t.Fatalf("NewPool(%s) error: %v", schema, err)
	}
	t.Cleanup(pool.Close)
	return pool
}

type sampleResult struct {
	samples []Sample
	err     error
}

func executeAndWait(t *testing.T, s Store, q SampleQuery) ([]Sample, error) {
	t.Helper()
	done := make(chan sampleResult, 1)
	s.Execute(context.Background(), q, func(samples []Sample, err error) {
		done <- sampleResult{samples, err}
	})
	select {
	case r := <-done:
		return r.samples, r.err
	case <-time.After(10 * time.Second):
		t.Fatal("query never completed")
		return nil, nil
	}
}

func authorizeAndWait(t *testing.T, s Store, types []ObjectType) (bool, error) {
	t.Helper()
	type outcome struct {
		ok  bool
		err error
	}
	done := make(chan outcome, 1)
	s.RequestAuthorization(context.Background(), types, func(ok bool, err error) {
		done <- outcome{ok, err}
	})
	select {
	case o := <-done:
		return o.ok, o.err
	case <-time.After(10 * time.Second):
		t.Fatal("authorization never completed")
		return false, nil
	}
}

func TestPGStore_Postgres(t *testing.T) {
	pool := openTestDatabase(t)
	ctx := context.Background()

	exec := func(t *testing.T, sql string, args ...any) {
		t.Helper()
		if _, err := pool.Exec(ctx, sql, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	exec(t, `INSERT INTO unsupported_type (sample_type) VALUES ($1)`, string(VitalSignRecord))

	base := time.Date(2022, 1, 10, 0, 0, 0, 0, time.UTC)
	oldest, newest, middle := uuid.New(), uuid.New(), uuid.New()
	for _, row := range []struct {
		id    uuid.UUID
		start time.Time
		value int
	}{
		{oldest, base.AddDate(-1, 0, 0), 0},
		{newest, base.AddDate(1, 0, 0), 1},
		{middle, base, 0},
	} {
		exec(t, `INSERT INTO health_sample (id, sample_type, start_date, end_date, category_value, metadata)
			VALUES ($1, $2, $3, $3, $4, '{"HKWasUserEntered":true}')`,
			row.id, string(Pregnancy), row.start, row.value)
	}

	bp := uuid.New()
	at := time.Date(2022, 6, 9, 15, 2, 4, 0, time.UTC)
	exec(t, `INSERT INTO health_sample (id, sample_type, start_date, end_date, device)
		VALUES ($1, $2, $3, $3, '{"name":"Cuff","manufacturer":"Acme"}')`,
		bp, string(BloodPressure), at)
	exec(t, `INSERT INTO health_sample (id, sample_type, start_date, end_date, quantity_value, quantity_unit, parent_id)
		VALUES ($1, $2, $3, $3, 120, 'mmHg', $4), ($5, $6, $3, $3, 80, 'mmHg', $4)`,
		uuid.New(), string(BloodPressureSystolic), at, bp, uuid.New(), string(BloodPressureDiastolic))

	store, err := NewPGStore(ctx, pool, v16, true)
	if err != nil {
		t.Fatalf("NewPGStore() error: %v", err)
	}

	t.Run("unsupported types", func(t *testing.T) {
		if _, ok := store.ObjectType(KindClinical, VitalSignRecord); ok {
			t.Fatal("expected unsupported_type rows to hide the identifier")
		}
		if _, ok := store.ObjectType(KindCategory, Pregnancy); !ok {
			t.Fatal("expected pregnancy to be supported")
		}
	})

	t.Run("category newest first", func(t *testing.T) {
		samples, err := executeAndWait(t, store, SampleQuery{
			Type: ObjectType{Kind: KindCategory, Identifier: Pregnancy},
			Sort: SortStartDateDescending,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(samples) != 3 {
			t.Fatalf("expected 3 samples, got %d", len(samples))
		}
		for i, want := range []uuid.UUID{newest, middle, oldest} {
			if got := samples[i].Header().UUID; got != want {
				t.Errorf("position %d: expected %s, got %s", i, want, got)
			}
		}
		c, ok := samples[0].(*CategorySample)
		if !ok || c.Value != 1 {
			t.Fatalf("expected category value 1, got %+v", samples[0])
		}
		if c.Metadata["HKWasUserEntered"] != true {
			t.Errorf("unexpected metadata %v", c.Metadata)
		}
	})

	t.Run("correlation components", func(t *testing.T) {
		samples, err := executeAndWait(t, store, SampleQuery{
			Type: ObjectType{Kind: KindCorrelation, Identifier: BloodPressure},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(samples) != 1 {
			t.Fatalf("expected components to stay under their correlation, got %d samples", len(samples))
		}
		c, ok := samples[0].(*Correlation)
		if !ok {
			t.Fatalf("expected *Correlation, got %T", samples[0])
		}
		sys, dia := c.ObjectsOfType(BloodPressureSystolic), c.ObjectsOfType(BloodPressureDiastolic)
		if len(sys) != 1 || len(dia) != 1 {
			t.Fatalf("expected one systolic and one diastolic component, got %d and %d", len(sys), len(dia))
		}
		if sys[0].Quantity.Value != 120 || dia[0].Quantity.Value != 80 || sys[0].Quantity.Unit != UnitMillimeterOfMercury {
			t.Errorf("unexpected components %+v %+v", sys[0].Quantity, dia[0].Quantity)
		}
		if c.Device == nil || c.Device.Manufacturer != "Acme" {
			t.Errorf("expected decoded device, got %+v", c.Device)
		}
	})

	t.Run("empty type", func(t *testing.T) {
		samples, err := executeAndWait(t, store, SampleQuery{
			Type: ObjectType{Kind: KindClinical, Identifier: LabResultRecord},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if samples == nil || len(samples) != 0 {
			t.Fatalf("expected empty non-nil result, got %#v", samples)
		}
	})

	t.Run("authorization upsert", func(t *testing.T) {
		types := []ObjectType{
			{Kind: KindCategory, Identifier: Pregnancy},
			{Kind: KindCorrelation, Identifier: BloodPressure},
		}
		for i := 0; i < 2; i++ {
			ok, err := authorizeAndWait(t, store, types)
			if err != nil || !ok {
				t.Fatalf("request %d: expected success, got %v %v", i, ok, err)
			}
		}

		var count int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM authorization_grant`).Scan(&count); err != nil {
			t.Fatalf("count grants: %v", err)
		}
		if count != 2 {
			t.Fatalf("expected 2 grants after repeated requests, got %d", count)
		}
		var kind string
		if err := pool.QueryRow(ctx, `SELECT kind FROM authorization_grant WHERE sample_type = $1`,
			string(BloodPressure)).Scan(&kind); err != nil {
			t.Fatalf("read grant: %v", err)
		}
		if kind != string(KindCorrelation) {
			t.Errorf("expected correlation grant, got %q", kind)
		}
	})

	t.Run("characteristics", func(t *testing.T) {
		assertNotSet := func(stage string) {
			t.Helper()
			if _, err := store.DateOfBirth(ctx); !errors.Is(err, ErrCharacteristicNotSet) {
				t.Errorf("%s: expected ErrCharacteristicNotSet for date of birth, got %v", stage, err)
			}
			if _, err := store.BiologicalSex(ctx); !errors.Is(err, ErrCharacteristicNotSet) {
				t.Errorf("%s: expected ErrCharacteristicNotSet for biological sex, got %v", stage, err)
			}
		}

		assertNotSet("no row")

		exec(t, `INSERT INTO patient_characteristic (id) VALUES (1)`)
		assertNotSet("null columns")

		exec(t, `UPDATE patient_characteristic SET biological_sex = 'female', birth_year = 1984, birth_month = 11 WHERE id = 1`)
		got, err := newTestOrchestrator(store).Characteristics(ctx)
		if err != nil {
			t.Fatalf("Characteristics() error: %v", err)
		}
		if got.Gender != "female" || got.DateOfBirth != "" {
			t.Errorf("expected female with no date of birth, got %+v", got)
		}

		exec(t, `UPDATE patient_characteristic SET birth_day = 23 WHERE id = 1`)
		dob, err := store.DateOfBirth(ctx)
		if err != nil {
			t.Fatalf("DateOfBirth() error: %v", err)
		}
		if *dob.Year != 1984 || *dob.Month != 11 || *dob.Day != 23 {
			t.Errorf("unexpected date of birth %d-%d-%d", *dob.Year, *dob.Month, *dob.Day)
		}
		got, err = newTestOrchestrator(store).Characteristics(ctx)
		if err != nil {
			t.Fatalf("Characteristics() error: %v", err)
		}
		if got.DateOfBirth != "1984-11-23" {
			t.Errorf("expected 1984-11-23, got %q", got.DateOfBirth)
		}
	})
}
