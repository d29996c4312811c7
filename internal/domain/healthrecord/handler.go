package healthrecord

import (
	"context"
	"errors"

	"github.com/ehr/healthbridge/internal/platform/channel"
)

// Channel method names.
const (
	MethodIsHealthDataAvailable        = "isHealthDataAvailable"
	MethodRequestAccess                = "requestAccess"
	MethodSupportedClinicalTypes       = "supportedClinicalTypes"
	MethodSupportedCategoryTypes       = "supportedCategoryTypes"
	MethodSupportedCorrelationTypes    = "supportedCorrelationTypes"
	MethodSupportedCharacteristicTypes = "supportedCharacteristicTypes"
	MethodQueryClinicalRecords         = "queryClinicalRecords"
	MethodQueryCategoryData            = "queryCategoryData"
	MethodQueryCorrelationData         = "queryCorrelationData"
	MethodGetPatientCharacteristicData = "getPatientCharacteristicData"
)

// Error codes sent across the bridge.
const (
	CodeHealthKitError        = "HealthKitError"
	CodeHealthKitUnavailable  = "HealthKitUnavailable"
	CodeMissingArgumentsError = "MissingArgumentsError"
)

// Handler serves the health record methods on a channel router.
type Handler struct {
	store        Store
	negotiator   *Negotiator
	orchestrator *Orchestrator
}

// NewHandler creates a Handler.
func NewHandler(store Store, negotiator *Negotiator, orchestrator *Orchestrator) *Handler {
	return &Handler{store: store, negotiator: negotiator, orchestrator: orchestrator}
}

// RegisterMethods registers every health record method on r.
func (h *Handler) RegisterMethods(r *channel.Router) {
	r.Handle(MethodIsHealthDataAvailable, h.IsHealthDataAvailable)
	r.Handle(MethodRequestAccess, h.RequestAccess)
	r.Handle(MethodSupportedClinicalTypes, h.supportedTypes(KindClinical))
	r.Handle(MethodSupportedCategoryTypes, h.supportedTypes(KindCategory))
	r.Handle(MethodSupportedCorrelationTypes, h.supportedTypes(KindCorrelation))
	r.Handle(MethodSupportedCharacteristicTypes, h.supportedTypes(KindCharacteristic))
	r.Handle(MethodQueryClinicalRecords, h.query(KindClinical))
	r.Handle(MethodQueryCategoryData, h.query(KindCategory))
	r.Handle(MethodQueryCorrelationData, h.query(KindCorrelation))
	r.Handle(MethodGetPatientCharacteristicData, h.GetPatientCharacteristicData)
}

func (h *Handler) IsHealthDataAvailable(_ context.Context, _ channel.MethodCall, result channel.Result) {
	result(h.store.IsHealthDataAvailable())
}

func (h *Handler) RequestAccess(ctx context.Context, _ channel.MethodCall, result channel.Result) {
	req := h.negotiator.BuildCapabilityRequest()
	h.negotiator.RequestAccess(ctx, req, func(success bool, err error) {
		if err != nil {
			result(errorReply(err))
			return
		}
		result(success)
	})
}

// supportedTypes dumps the catalog for kind, or an empty list when the
// platform cannot read that kind.
func (h *Handler) supportedTypes(kind Kind) channel.HandlerFunc {
	return func(_ context.Context, _ channel.MethodCall, result channel.Result) {
		if !KindAvailable(kind, h.store.PlatformVersion()) {
			result([]string{})
			return
		}
		result(SupportedTypeStrings(kind))
	}
}

func (h *Handler) query(kind Kind) channel.HandlerFunc {
	return func(ctx context.Context, call channel.MethodCall, result channel.Result) {
		if !KindAvailable(kind, h.store.PlatformVersion()) {
			result(errorReply(ErrUnsupportedPlatform))
			return
		}
		typeString, ok := call.Arguments.(string)
		if !ok {
			result(errorReply(ErrMissingArgument))
			return
		}
		h.orchestrator.QueryByType(ctx, kind, typeString, func(records []ConvertedRecord, err error) {
			if err != nil {
				result(errorReply(err))
				return
			}
			result(records)
		})
	}
}

func (h *Handler) GetPatientCharacteristicData(ctx context.Context, _ channel.MethodCall, result channel.Result) {
	c, err := h.orchestrator.Characteristics(ctx)
	if err != nil {
		result(errorReply(err))
		return
	}
	result(c.Map())
}

// errorReply maps domain errors onto bridge error payloads.
func errorReply(err error) *channel.Error {
	var (
		unsupported *UnsupportedTypeError
		queryFailed *QueryFailedError
		authFailed  *AuthorizationError
	)
	switch {
	case errors.Is(err, ErrMissingArgument):
		return channel.NewError(CodeMissingArgumentsError, ErrMissingArgument.Error(), nil)
	case errors.Is(err, ErrUnsupportedPlatform):
		return channel.NewError(CodeHealthKitUnavailable, "HealthKit not available", nil)
	case errors.As(err, &unsupported):
		return channel.NewError(CodeHealthKitError, "Unsupported type", unsupported.Identifier)
	case errors.As(err, &queryFailed):
		return channel.NewError(CodeHealthKitError, queryFailed.Message, detailsOf(queryFailed.Err))
	case errors.As(err, &authFailed):
		return channel.NewError(CodeHealthKitError, authFailed.Message, detailsOf(authFailed.Err))
	default:
		return channel.NewError(CodeHealthKitError, err.Error(), nil)
	}
}

func detailsOf(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
