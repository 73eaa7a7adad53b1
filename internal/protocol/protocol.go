// Package protocol defines the message contract carried over the
// asynchronous channel between page contexts and the privileged context.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/orvi2014/classcatch/internal/quota"
)

// Type identifies a request on the channel.
type Type string

const (
	TypeVerifyLicense       Type = "VERIFY_LICENSE"
	TypeGetStatus           Type = "GET_STATUS"
	TypeCheckAndConsumePage Type = "CHECK_AND_CONSUME_PAGE"
	TypeGetQuota            Type = "GET_QUOTA"
	TypeResetQuota          Type = "RESET_QUOTA"
)

// Envelope frames every message on the channel. Responses echo the
// request ID so a client with several requests in flight can correlate
// replies.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// VerifyLicenseRequest is the VERIFY_LICENSE payload.
type VerifyLicenseRequest struct {
	LicenseKey       string `json:"licenseKey"`
	ProductPermalink string `json:"productPermalink"`
}

// ConsumePageRequest is the CHECK_AND_CONSUME_PAGE payload.
type ConsumePageRequest struct {
	PageKey string `json:"pageKey"`
}

// VerifyLicenseResponse is the VERIFY_LICENSE reply payload. The Error
// field already lives on the embedded result.
type VerifyLicenseResponse = quota.VerifyResult

// StatusResponse is the GET_STATUS reply payload.
type StatusResponse struct {
	quota.StatusResult
	Error string `json:"error,omitempty"`
}

// ConsumePageResponse is the CHECK_AND_CONSUME_PAGE reply payload.
type ConsumePageResponse struct {
	quota.ConsumeResult
	Error string `json:"error,omitempty"`
}

// QuotaResponse is the GET_QUOTA reply payload.
type QuotaResponse struct {
	quota.QuotaResult
	Error string `json:"error,omitempty"`
}

// ResetQuotaResponse is the RESET_QUOTA reply payload.
type ResetQuotaResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewEnvelope builds an envelope with a marshaled payload. A nil payload
// produces an empty envelope body.
func NewEnvelope(id string, typ Type, payload any) (Envelope, error) {
	env := Envelope{ID: id, Type: typ}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	env.Payload = data
	return env, nil
}

// DecodePayload unmarshals an envelope payload into out. An empty payload
// leaves out untouched.
func DecodePayload(env Envelope, out any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
