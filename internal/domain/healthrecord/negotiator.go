package healthrecord

import (
	"context"

	"github.com/rs/zerolog"
)

// CapabilityRequest is the deduplicated set of types read access is requested
// for. It is immutable once built.
type CapabilityRequest struct {
	types []ObjectType
}

// Types returns the requested types in the order they were first added.
func (r CapabilityRequest) Types() []ObjectType {
	out := make([]ObjectType, len(r.types))
	copy(out, r.types)
	return out
}

// Len is the number of distinct types.
func (r CapabilityRequest) Len() int { return len(r.types) }

// Contains reports whether id is part of the request.
func (r CapabilityRequest) Contains(id TypeIdentifier) bool {
	for _, t := range r.types {
		if t.Identifier == id {
			return true
		}
	}
	return false
}

// Negotiator builds capability requests and asks the store for access.
type Negotiator struct {
	store   Store
	logger  zerolog.Logger
	metrics *Metrics
}

// NewNegotiator creates a Negotiator over store.
func NewNegotiator(store Store, logger zerolog.Logger, metrics *Metrics) *Negotiator {
	return &Negotiator{
		store:   store,
		logger:  logger.With().Str("component", "negotiator").Logger(),
		metrics: metrics,
	}
}

// BuildCapabilityRequest unions the catalog entries of every requested kind.
// With no kinds, all kinds are requested. Kinds the platform cannot read, and
// identifiers the store cannot materialize, are skipped.
func (n *Negotiator) BuildCapabilityRequest(kinds ...Kind) CapabilityRequest {
	if len(kinds) == 0 {
		kinds = kindOrder
	}
	version := n.store.PlatformVersion()
	seen := make(map[ObjectType]struct{})
	var types []ObjectType
	for _, kind := range kinds {
		if !KindAvailable(kind, version) {
			n.logger.Debug().Str("kind", string(kind)).Str("platform", version.String()).
				Msg("kind not available on platform, skipping")
			continue
		}
		for _, id := range catalog[kind] {
			t, ok := n.store.ObjectType(kind, id)
			if !ok {
				n.logger.Debug().Str("type", string(id)).Msg("store could not materialize type, skipping")
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			types = append(types, t)
		}
	}
	return CapabilityRequest{types: types}
}

// RequestAccess asks the store for read access to req in a single call. The
// completion runs on whatever goroutine the store completes on; callers that
// need a specific delivery context must pin it themselves.
func (n *Negotiator) RequestAccess(ctx context.Context, req CapabilityRequest, completion AuthorizationCompletion) {
	if !n.store.PlatformVersion().AtLeast(minHealthRecords) {
		completion(false, ErrUnsupportedPlatform)
		return
	}
	n.logger.Info().Int("types", req.Len()).Msg("requesting read authorization")
	n.store.RequestAuthorization(ctx, req.Types(), func(success bool, err error) {
		if err != nil {
			n.logger.Warn().Err(err).Msg("authorization failed")
			n.metrics.IncAuthorization("error")
			completion(false, &AuthorizationError{Message: err.Error(), Err: err})
			return
		}
		if success {
			n.metrics.IncAuthorization("granted")
		} else {
			n.metrics.IncAuthorization("denied")
		}
		completion(success, nil)
	})
}
