package healthrecord

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// RecordsCompletion receives the converted records of a query, or an error.
type RecordsCompletion func(records []ConvertedRecord, err error)

// Orchestrator resolves requested types, queries the store and converts the
// results. It holds no per-request state.
type Orchestrator struct {
	store     Store
	converter *Converter
	logger    zerolog.Logger
	metrics   *Metrics
}

// NewOrchestrator creates an Orchestrator over store.
func NewOrchestrator(store Store, logger zerolog.Logger, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		store:     store,
		converter: NewConverter(store.PlatformVersion()),
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		metrics:   metrics,
	}
}

// QueryByType resolves identifier within kind and returns every record of that
// type. Unresolvable identifiers fail before any store call. Samples that cannot
// be converted are left out of the result instead of failing the query.
func (o *Orchestrator) QueryByType(ctx context.Context, kind Kind, identifier string, completion RecordsCompletion) {
	start := time.Now()
	if !KindAvailable(kind, o.store.PlatformVersion()) {
		o.metrics.ObserveQuery(kind, "unavailable", time.Since(start))
		completion(nil, ErrUnsupportedPlatform)
		return
	}

	convert := o.converter.For(kind)
	id, err := Resolve(kind, identifier)
	if err != nil || convert == nil {
		o.metrics.ObserveQuery(kind, "unsupported_type", time.Since(start))
		completion(nil, &UnsupportedTypeError{Kind: kind, Identifier: identifier})
		return
	}
	objectType, ok := o.store.ObjectType(kind, id)
	if !ok {
		o.metrics.ObserveQuery(kind, "unsupported_type", time.Since(start))
		completion(nil, &UnsupportedTypeError{Kind: kind, Identifier: identifier})
		return
	}

	q := SampleQuery{Type: objectType}
	if kind == KindCategory {
		q.Sort = SortStartDateDescending
	}

	log := o.logger.With().Str("kind", string(kind)).Str("type", identifier).Logger()
	o.store.Execute(ctx, q, func(samples []Sample, err error) {
		if err != nil || samples == nil {
			qerr := newQueryFailed(err)
			log.Warn().Str("reason", qerr.Message).Msg("query failed")
			o.metrics.ObserveQuery(kind, "failed", time.Since(start))
			completion(nil, qerr)
			return
		}

		if q.Sort == SortStartDateDescending {
			sortByStartDescending(samples)
		}

		records := make([]ConvertedRecord, 0, len(samples))
		for i, s := range samples {
			if isNilSample(s) {
				continue
			}
			r := convert(s)
			if r == nil {
				log.Debug().Int("index", i).Msg("dropping sample that could not be converted")
				continue
			}
			records = append(records, r)
		}

		dropped := len(samples) - len(records)
		log.Debug().Int("records", len(records)).Int("dropped", dropped).Msg("query complete")
		o.metrics.AddRecords(kind, len(records), dropped)
		o.metrics.ObserveQuery(kind, "ok", time.Since(start))
		completion(records, nil)
	})
}

// sortByStartDescending orders samples most recent first. Nil samples sink to
// the end; the conversion loop skips them.
func sortByStartDescending(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		a, b := samples[i], samples[j]
		aNil, bNil := isNilSample(a), isNilSample(b)
		if aNil || bNil {
			return bNil && !aNil
		}
		return a.Header().StartDate.After(b.Header().StartDate)
	})
}

// isNilSample reports whether s is nil or wraps a nil pointer.
func isNilSample(s Sample) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *ClinicalRecord:
		return v == nil
	case *CategorySample:
		return v == nil
	case *QuantitySample:
		return v == nil
	case *Correlation:
		return v == nil
	}
	return false
}

// Characteristics reads date of birth and biological sex. Each value degrades
// to "" independently when the store cannot provide it.
func (o *Orchestrator) Characteristics(ctx context.Context) (Characteristics, error) {
	if !KindAvailable(KindCharacteristic, o.store.PlatformVersion()) {
		return Characteristics{}, ErrUnsupportedPlatform
	}

	var c Characteristics
	if dob, err := o.store.DateOfBirth(ctx); err != nil {
		o.logger.Debug().Err(err).Msg("date of birth unavailable")
	} else {
		c.DateOfBirth = formatDateOfBirth(dob)
	}
	if sex, err := o.store.BiologicalSex(ctx); err != nil {
		o.logger.Debug().Err(err).Msg("biological sex unavailable")
	} else {
		c.Gender = sex.GenderCode()
	}
	return c, nil
}
