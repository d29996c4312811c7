package healthrecord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/healthbridge/internal/platform/fhir"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGStore is a Store backed by tables a device sync writes into. Queries run
// on their own goroutine and complete from there.
type PGStore struct {
	db          queryable
	version     PlatformVersion
	available   bool
	unsupported map[TypeIdentifier]bool
}

// NewPGStore creates a PGStore and loads the set of identifiers the simulated
// platform does not know.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool, version PlatformVersion, available bool) (*PGStore, error) {
	s := &PGStore{db: pool, version: version, available: available, unsupported: make(map[TypeIdentifier]bool)}
	rows, err := pool.Query(ctx, `SELECT sample_type FROM unsupported_type`)
	if err != nil {
		return nil, fmt.Errorf("load unsupported types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unsupported type: %w", err)
		}
		s.unsupported[TypeIdentifier(id)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsupported types: %w", err)
	}
	return s, nil
}

func (s *PGStore) IsHealthDataAvailable() bool { return s.available }

func (s *PGStore) PlatformVersion() PlatformVersion { return s.version }

func (s *PGStore) ObjectType(kind Kind, id TypeIdentifier) (ObjectType, bool) {
	if s.unsupported[id] {
		return ObjectType{}, false
	}
	return ObjectType{Kind: kind, Identifier: id}, true
}

func (s *PGStore) RequestAuthorization(ctx context.Context, types []ObjectType, completion AuthorizationCompletion) {
	go func() {
		for _, t := range types {
			_, err := s.db.Exec(ctx, `
				INSERT INTO authorization_grant (sample_type, kind) VALUES ($1, $2)
				ON CONFLICT (sample_type) DO UPDATE SET granted_at = NOW()`,
				string(t.Identifier), string(t.Kind))
			if err != nil {
				completion(false, fmt.Errorf("record grant for %s: %w", t.Identifier, err))
				return
			}
		}
		completion(true, nil)
	}()
}

const sampleCols = `id, sample_type, start_date, end_date, metadata, device, source_revision,
	category_value, quantity_value, quantity_unit, display_name,
	fhir_version, fhir_source_url, fhir_data`

type sampleRow struct {
	ID             uuid.UUID
	SampleType     string
	StartDate      time.Time
	EndDate        time.Time
	Metadata       []byte
	Device         []byte
	SourceRevision []byte
	CategoryValue  *int
	QuantityValue  *float64
	QuantityUnit   *string
	DisplayName    *string
	FHIRVersion    *string
	FHIRSourceURL  *string
	FHIRData       []byte
}

func scanSampleRow(row pgx.Row) (*sampleRow, error) {
	var r sampleRow
	err := row.Scan(&r.ID, &r.SampleType, &r.StartDate, &r.EndDate, &r.Metadata, &r.Device, &r.SourceRevision,
		&r.CategoryValue, &r.QuantityValue, &r.QuantityUnit, &r.DisplayName,
		&r.FHIRVersion, &r.FHIRSourceURL, &r.FHIRData)
	return &r, err
}

// header decodes the shared columns. JSON columns that fail to decode are left
// empty rather than failing the row.
func (r *sampleRow) header() SampleHeader {
	h := SampleHeader{
		UUID:       r.ID,
		SampleType: TypeIdentifier(r.SampleType),
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &h.Metadata)
	}
	if len(r.Device) > 0 {
		var d Device
		if json.Unmarshal(r.Device, &d) == nil {
			h.Device = &d
		}
	}
	if len(r.SourceRevision) > 0 {
		var sr SourceRevision
		if json.Unmarshal(r.SourceRevision, &sr) == nil {
			h.SourceRevision = &sr
		}
	}
	return h
}

// sample builds the variant for kind. It returns nil when the row lacks the
// columns that shape needs; the orchestrator drops such samples.
func (r *sampleRow) sample(kind Kind) Sample {
	h := r.header()
	switch kind {
	case KindClinical:
		rec := &ClinicalRecord{SampleHeader: h}
		if r.DisplayName != nil {
			rec.DisplayName = *r.DisplayName
		}
		if r.FHIRData != nil {
			res := &FHIRResource{Data: r.FHIRData}
			if r.FHIRVersion != nil {
				res.Version = *r.FHIRVersion
			}
			if r.FHIRSourceURL != nil {
				if u, err := url.Parse(*r.FHIRSourceURL); err == nil {
					res.SourceURL = u
				}
			}
			rec.Resource = res
		}
		return rec
	case KindCategory:
		if r.CategoryValue == nil {
			return nil
		}
		return &CategorySample{SampleHeader: h, Value: *r.CategoryValue}
	case KindCorrelation:
		return &Correlation{SampleHeader: h}
	default:
		if r.QuantityValue == nil || r.QuantityUnit == nil {
			return nil
		}
		return &QuantitySample{SampleHeader: h, Quantity: Quantity{Value: *r.QuantityValue, Unit: Unit(*r.QuantityUnit)}}
	}
}

func (s *PGStore) Execute(ctx context.Context, q SampleQuery, completion QueryCompletion) {
	go func() {
		samples, err := s.query(ctx, q)
		if err != nil {
			completion(nil, err)
			return
		}
		completion(samples, nil)
	}()
}

func (s *PGStore) query(ctx context.Context, q SampleQuery) ([]Sample, error) {
	order := ""
	if q.Sort == SortStartDateDescending {
		order = ` ORDER BY start_date DESC`
	}
	rows, err := s.db.Query(ctx, `SELECT `+sampleCols+` FROM health_sample
		WHERE sample_type = $1 AND parent_id IS NULL`+order, string(q.Type.Identifier))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Type.Identifier, err)
	}
	defer rows.Close()

	samples := []Sample{}
	var correlations []*Correlation
	for rows.Next() {
		r, err := scanSampleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp := r.sample(q.Type.Kind)
		if c, ok := smp.(*Correlation); ok {
			correlations = append(correlations, c)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	rows.Close()

	for _, c := range correlations {
		if err := s.loadComponents(ctx, c); err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func (s *PGStore) loadComponents(ctx context.Context, c *Correlation) error {
	rows, err := s.db.Query(ctx, `SELECT `+sampleCols+` FROM health_sample
		WHERE parent_id = $1 ORDER BY start_date, id`, c.UUID)
	if err != nil {
		return fmt.Errorf("query components of %s: %w", c.UUID, err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanSampleRow(rows)
		if err != nil {
			return fmt.Errorf("scan component: %w", err)
		}
		if q, ok := r.sample("").(*QuantitySample); ok {
			c.Objects = append(c.Objects, q)
		}
	}
	return rows.Err()
}

func (s *PGStore) DateOfBirth(ctx context.Context) (*fhir.DateValue, error) {
	var year, month, day *int
	err := s.db.QueryRow(ctx,
		`SELECT birth_year, birth_month, birth_day FROM patient_characteristic WHERE id = 1`).
		Scan(&year, &month, &day)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCharacteristicNotSet
		}
		return nil, fmt.Errorf("query date of birth: %w", err)
	}
	if year == nil {
		return nil, ErrCharacteristicNotSet
	}
	return &fhir.DateValue{Year: year, Month: month, Day: day, Calendar: fhir.CalendarGregorian}, nil
}

func (s *PGStore) BiologicalSex(ctx context.Context) (BiologicalSexValue, error) {
	var sex *string
	err := s.db.QueryRow(ctx,
		`SELECT biological_sex FROM patient_characteristic WHERE id = 1`).Scan(&sex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SexNotSet, ErrCharacteristicNotSet
		}
		return SexNotSet, fmt.Errorf("query biological sex: %w", err)
	}
	if sex == nil {
		return SexNotSet, ErrCharacteristicNotSet
	}
	return ParseBiologicalSex(*sex), nil
}
