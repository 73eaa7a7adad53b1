package channel

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/errkind"
	"github.com/orvi2014/classcatch/internal/protocol"
	"github.com/orvi2014/classcatch/internal/quota"
)

// Service is the quota authority surface the dispatcher routes to.
type Service interface {
	GetStatus(ctx context.Context) (quota.StatusResult, error)
	VerifyLicense(ctx context.Context, licenseKey, productPermalink string) (quota.VerifyResult, error)
	CheckAndConsumePage(ctx context.Context, pageKey string) (quota.ConsumeResult, error)
	GetQuota(ctx context.Context) (quota.QuotaResult, error)
	ResetQuota(ctx context.Context) error
}

// Dispatcher routes request envelopes to the quota authority and converts
// every failure into the typed error field of the matching response shape.
// The channel cannot carry raised errors, so nothing escapes this layer.
type Dispatcher struct {
	svc Service
}

// NewDispatcher creates a dispatcher over the given authority.
func NewDispatcher(svc Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

// Dispatch handles one request envelope and returns the reply envelope,
// echoing the request ID and type.
func (d *Dispatcher) Dispatch(ctx context.Context, env protocol.Envelope) protocol.Envelope {
	switch env.Type {
	case protocol.TypeVerifyLicense:
		var req protocol.VerifyLicenseRequest
		if err := protocol.DecodePayload(env, &req); err != nil {
			return reply(env, protocol.VerifyLicenseResponse{Success: false, Error: "Invalid request body"})
		}
		result, err := d.svc.VerifyLicense(ctx, req.LicenseKey, req.ProductPermalink)
		if err != nil {
			return reply(env, protocol.VerifyLicenseResponse{Success: false, Error: errkind.Message(err)})
		}
		return reply(env, result)

	case protocol.TypeGetStatus:
		result, err := d.svc.GetStatus(ctx)
		if err != nil {
			return reply(env, protocol.StatusResponse{Error: errkind.Message(err)})
		}
		return reply(env, protocol.StatusResponse{StatusResult: result})

	case protocol.TypeCheckAndConsumePage:
		var req protocol.ConsumePageRequest
		if err := protocol.DecodePayload(env, &req); err != nil {
			return reply(env, protocol.ConsumePageResponse{Error: "Invalid request body"})
		}
		result, err := d.svc.CheckAndConsumePage(ctx, req.PageKey)
		if err != nil {
			return reply(env, protocol.ConsumePageResponse{Error: errkind.Message(err)})
		}
		return reply(env, protocol.ConsumePageResponse{ConsumeResult: result})

	case protocol.TypeGetQuota:
		result, err := d.svc.GetQuota(ctx)
		if err != nil {
			return reply(env, protocol.QuotaResponse{Error: errkind.Message(err)})
		}
		return reply(env, protocol.QuotaResponse{QuotaResult: result})

	case protocol.TypeResetQuota:
		if err := d.svc.ResetQuota(ctx); err != nil {
			return reply(env, protocol.ResetQuotaResponse{Success: false, Error: errkind.Message(err)})
		}
		return reply(env, protocol.ResetQuotaResponse{Success: true})

	default:
		log.Warn().Str("type", string(env.Type)).Msg("Unknown message type on channel")
		return reply(env, protocol.ResetQuotaResponse{Success: false, Error: "Unknown message type"})
	}
}

func reply(req protocol.Envelope, payload any) protocol.Envelope {
	env, err := protocol.NewEnvelope(req.ID, req.Type, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(req.Type)).Msg("Failed to encode response payload")
		return protocol.Envelope{ID: req.ID, Type: req.Type}
	}
	return env
}
