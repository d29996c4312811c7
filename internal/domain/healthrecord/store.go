package healthrecord

import (
	"context"

	"github.com/ehr/healthbridge/internal/platform/fhir"
)

// ObjectType is a type handle materialized by the store.
type ObjectType struct {
	Kind       Kind
	Identifier TypeIdentifier
}

// SortDescriptor orders query results.
type SortDescriptor int

const (
	// SortNone leaves results in store order.
	SortNone SortDescriptor = iota
	// SortStartDateDescending puts the most recent sample first.
	SortStartDateDescending
)

// SampleQuery describes a single unbounded, unfiltered query.
type SampleQuery struct {
	Type ObjectType
	Sort SortDescriptor
}

// QueryCompletion receives the outcome of a query exactly once. A nil error with
// nil samples means the store failed without reporting why.
type QueryCompletion func(samples []Sample, err error)

// AuthorizationCompletion receives the outcome of an authorization request
// exactly once.
type AuthorizationCompletion func(success bool, err error)

// Store is the platform health store. Completions may be invoked on any
// goroutine; callers must not assume the goroutine that issued the request.
// Implementations must be safe for concurrent read-only use.
type Store interface {
	// IsHealthDataAvailable reports whether the device has a health store at all.
	IsHealthDataAvailable() bool
	// PlatformVersion is the OS version the store runs on.
	PlatformVersion() PlatformVersion
	// ObjectType materializes id into a queryable handle. ok is false when the
	// platform does not know the identifier.
	ObjectType(kind Kind, id TypeIdentifier) (ObjectType, bool)
	// RequestAuthorization asks for read access to types.
	RequestAuthorization(ctx context.Context, types []ObjectType, completion AuthorizationCompletion)
	// Execute runs q and reports the result through completion.
	Execute(ctx context.Context, q SampleQuery, completion QueryCompletion)
	// DateOfBirth returns the birth date components.
	DateOfBirth(ctx context.Context) (*fhir.DateValue, error)
	// BiologicalSex returns the biological sex characteristic.
	BiologicalSex(ctx context.Context) (BiologicalSexValue, error)
}
