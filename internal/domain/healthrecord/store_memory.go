package healthrecord

import (
	"context"
	"errors"
	"sync"

	"github.com/ehr/healthbridge/internal/platform/fhir"
)

// ErrCharacteristicNotSet is returned by MemoryStore for characteristics that
// were never set.
var ErrCharacteristicNotSet = errors.New("characteristic not set")

// MemoryStore is an in-process Store used in development and tests. Completions
// are delivered on a fresh goroutine, like a platform store calling back from a
// background queue.
type MemoryStore struct {
	mu        sync.RWMutex
	version   PlatformVersion
	available bool
	samples   map[TypeIdentifier][]Sample
	unknown   map[TypeIdentifier]bool
	dob       *fhir.DateValue
	sex       *BiologicalSexValue

	// AuthorizationErr, when set, fails every authorization request.
	AuthorizationErr error
	// QueryErr, when set, fails every query.
	QueryErr error
	// FailSilently makes queries fail without an error value.
	FailSilently bool

	authorized map[ObjectType]bool
	queries    []SampleQuery
}

// NewMemoryStore creates an empty, available store for the given platform version.
func NewMemoryStore(version PlatformVersion) *MemoryStore {
	return &MemoryStore{
		version:    version,
		available:  true,
		samples:    make(map[TypeIdentifier][]Sample),
		unknown:    make(map[TypeIdentifier]bool),
		authorized: make(map[ObjectType]bool),
	}
}

// SetAvailable sets the result of IsHealthDataAvailable.
func (m *MemoryStore) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// Forget makes ObjectType fail for id, as if the platform did not know it.
func (m *MemoryStore) Forget(id TypeIdentifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unknown[id] = true
}

// Add stores samples under their own sample type.
func (m *MemoryStore) Add(samples ...Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		id := s.Header().SampleType
		m.samples[id] = append(m.samples[id], s)
	}
}

// AddTo stores samples under id regardless of their sample type, which lets
// tests plant samples of the wrong shape.
func (m *MemoryStore) AddTo(id TypeIdentifier, samples ...Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[id] = append(m.samples[id], samples...)
}

// SetDateOfBirth sets the date of birth characteristic.
func (m *MemoryStore) SetDateOfBirth(v fhir.DateValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dob = &v
}

// SetBiologicalSex sets the biological sex characteristic.
func (m *MemoryStore) SetBiologicalSex(v BiologicalSexValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sex = &v
}

// Authorized reports whether read access was granted for t.
func (m *MemoryStore) Authorized(t ObjectType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authorized[t]
}

// Queries returns the queries executed so far.
func (m *MemoryStore) Queries() []SampleQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SampleQuery, len(m.queries))
	copy(out, m.queries)
	return out
}

func (m *MemoryStore) IsHealthDataAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

func (m *MemoryStore) PlatformVersion() PlatformVersion {
	return m.version
}

func (m *MemoryStore) ObjectType(kind Kind, id TypeIdentifier) (ObjectType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unknown[id] {
		return ObjectType{}, false
	}
	return ObjectType{Kind: kind, Identifier: id}, true
}

func (m *MemoryStore) RequestAuthorization(_ context.Context, types []ObjectType, completion AuthorizationCompletion) {
	m.mu.Lock()
	err := m.AuthorizationErr
	if err == nil {
		for _, t := range types {
			m.authorized[t] = true
		}
	}
	m.mu.Unlock()

	go func() {
		if err != nil {
			completion(false, err)
			return
		}
		completion(true, nil)
	}()
}

func (m *MemoryStore) Execute(_ context.Context, q SampleQuery, completion QueryCompletion) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	err, silent := m.QueryErr, m.FailSilently
	samples := make([]Sample, len(m.samples[q.Type.Identifier]))
	copy(samples, m.samples[q.Type.Identifier])
	m.mu.Unlock()

	go func() {
		switch {
		case err != nil:
			completion(nil, err)
		case silent:
			completion(nil, nil)
		default:
			if q.Sort == SortStartDateDescending {
				sortByStartDescending(samples)
			}
			completion(samples, nil)
		}
	}()
}

func (m *MemoryStore) DateOfBirth(context.Context) (*fhir.DateValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dob == nil {
		return nil, ErrCharacteristicNotSet
	}
	v := *m.dob
	return &v, nil
}

func (m *MemoryStore) BiologicalSex(context.Context) (BiologicalSexValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sex == nil {
		return SexNotSet, ErrCharacteristicNotSet
	}
	return *m.sex, nil
}
