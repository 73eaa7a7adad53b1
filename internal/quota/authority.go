package quota

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/entitlement"
	"github.com/orvi2014/classcatch/internal/errkind"
	"github.com/orvi2014/classcatch/internal/metrics"
)

// User-facing messages surfaced through the gating protocol.
const (
	MsgQuotaReached  = "Free plan page limit reached. Verify license to unlock more pages."
	MsgInvalidKey    = "Invalid license"
	MsgVerifyFailed  = "Failed to verify license. Please try again."
	MsgStatusFailed  = "Failed to get status"
	MsgConsumeFailed = "Failed to check page quota"
	MsgQuotaFailed   = "Failed to get quota information"
)

// VerifyOutcome is the distilled answer from the license verification
// collaborator.
type VerifyOutcome struct {
	Valid   bool
	Message string
}

// Verifier is the external license verification collaborator. A returned
// error means the provider could not be reached or answered garbage; a
// clean negative answer comes back as Valid=false.
type Verifier interface {
	Verify(ctx context.Context, licenseKey, productPermalink string) (VerifyOutcome, error)
}

// StatusResult is the GET_STATUS response payload.
type StatusResult struct {
	Status    entitlement.Status `json:"status"`
	Plan      entitlement.Plan   `json:"plan"`
	PageQuota int                `json:"pageQuota"`
	UsedPages []string           `json:"usedPages"`
}

// VerifyResult is the VERIFY_LICENSE response payload.
type VerifyResult struct {
	Success   bool               `json:"success"`
	Status    entitlement.Status `json:"status,omitempty"`
	Plan      entitlement.Plan   `json:"plan,omitempty"`
	PageQuota int                `json:"pageQuota,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// ConsumeResult is the CHECK_AND_CONSUME_PAGE response payload.
// Remaining uses entitlement.Unlimited for the forever plan.
type ConsumeResult struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message,omitempty"`
}

// QuotaResult is the GET_QUOTA response payload.
type QuotaResult struct {
	Plan      entitlement.Plan `json:"plan"`
	Used      int              `json:"used"`
	PageQuota int              `json:"pageQuota"`
	Remaining int              `json:"remaining"`
}

// Authority owns all read-modify-write access to the entitlement store
// and answers the gating protocol. It is the single writer: every other
// component only reads, and only through these operations.
type Authority struct {
	store    entitlement.Store
	verifier Verifier

	// Serializes read-modify-write cycles within this process. The store
	// contract itself stays last-writer-wins.
	mu sync.Mutex
}

// NewAuthority creates a quota authority over the given store and
// verification collaborator.
func NewAuthority(store entitlement.Store, verifier Verifier) *Authority {
	return &Authority{store: store, verifier: verifier}
}

// GetStatus returns the entitlement record fields relevant to gating,
// with installation defaults filled in.
func (a *Authority) GetStatus(ctx context.Context) (StatusResult, error) {
	rec, err := a.store.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read entitlement store for status")
		return StatusResult{}, errkind.New(errkind.KindStore, "get_status", MsgStatusFailed)
	}
	return StatusResult{
		Status:    rec.Status,
		Plan:      rec.Plan,
		PageQuota: rec.PageQuota,
		UsedPages: rec.UsedPages,
	}, nil
}

// VerifyLicense checks a license key with the external provider and, on a
// positive answer, upgrades the record to the forever plan. The upgrade is
// monotonic: nothing in this system ever downgrades it.
func (a *Authority) VerifyLicense(ctx context.Context, licenseKey, productPermalink string) (VerifyResult, error) {
	if licenseKey == "" || productPermalink == "" {
		return VerifyResult{}, errkind.Validation("verify_license", "License key and product permalink are required")
	}

	outcome, err := a.verifier.Verify(ctx, licenseKey, productPermalink)
	if err != nil {
		log.Warn().Err(err).Msg("License verification transport failure")
		metrics.VerifyResults.WithLabelValues("transport_error").Inc()
		return VerifyResult{Success: false, Error: MsgVerifyFailed}, nil
	}

	if !outcome.Valid {
		msg := outcome.Message
		if msg == "" {
			msg = MsgInvalidKey
		}
		metrics.VerifyResults.WithLabelValues("invalid").Inc()
		return VerifyResult{Success: false, Error: msg}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	err = a.store.Set(ctx, entitlement.Mutation{
		Status:           entitlement.StatusPtr(entitlement.StatusPro),
		Plan:             entitlement.PlanPtr(entitlement.PlanForever),
		PageQuota:        entitlement.IntPtr(entitlement.Unlimited),
		LicenseKey:       entitlement.StringPtr(licenseKey),
		ProductPermalink: entitlement.StringPtr(productPermalink),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist verified license")
		metrics.VerifyResults.WithLabelValues("store_error").Inc()
		return VerifyResult{Success: false, Error: MsgVerifyFailed}, nil
	}

	log.Info().Msg("License verified, forever plan unlocked")
	metrics.VerifyResults.WithLabelValues("success").Inc()
	return VerifyResult{
		Success:   true,
		Status:    entitlement.StatusPro,
		Plan:      entitlement.PlanForever,
		PageQuota: entitlement.Unlimited,
	}, nil
}

// CheckAndConsumePage decides whether a page may use the tool and charges
// one quota unit for a first visit. The policy order is load-bearing:
// unlimited before revisit before deny before append, so a page paid for
// once stays free forever and the quota ceiling is never overshot.
func (a *Authority) CheckAndConsumePage(ctx context.Context, pageKey string) (ConsumeResult, error) {
	if pageKey == "" {
		return ConsumeResult{}, errkind.Validation("check_and_consume_page", "Page key is required")
	}

	key := entitlement.NormalizePageKey(pageKey)

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, err := a.store.Get(ctx)
	if err != nil {
		log.Error().Err(err).Str("pageKey", key).Msg("Failed to read entitlement store for consume")
		return ConsumeResult{}, errkind.New(errkind.KindStore, "check_and_consume_page", MsgConsumeFailed)
	}

	if rec.Plan == entitlement.PlanForever || entitlement.IsUnlimited(rec.PageQuota) {
		metrics.ConsumeDecisions.WithLabelValues("unlimited").Inc()
		return ConsumeResult{Allowed: true, Remaining: entitlement.Unlimited}, nil
	}

	if rec.HasUsedPage(key) {
		metrics.ConsumeDecisions.WithLabelValues("revisit").Inc()
		return ConsumeResult{Allowed: true, Remaining: rec.PageQuota - len(rec.UsedPages)}, nil
	}

	if len(rec.UsedPages) >= rec.PageQuota {
		log.Debug().Str("pageKey", key).Int("quota", rec.PageQuota).Msg("Page quota reached, blocking")
		metrics.ConsumeDecisions.WithLabelValues("denied").Inc()
		return ConsumeResult{Allowed: false, Remaining: 0, Message: MsgQuotaReached}, nil
	}

	updated := append(append([]string(nil), rec.UsedPages...), key)
	err = a.store.Set(ctx, entitlement.Mutation{UsedPages: updated, SetUsedPages: true})
	if err != nil {
		log.Error().Err(err).Str("pageKey", key).Msg("Failed to persist consumed page")
		return ConsumeResult{}, errkind.New(errkind.KindStore, "check_and_consume_page", MsgConsumeFailed)
	}

	remaining := rec.PageQuota - len(updated)
	log.Debug().Str("pageKey", key).Int("remaining", remaining).Msg("Page quota consumed")
	metrics.ConsumeDecisions.WithLabelValues("consumed").Inc()
	return ConsumeResult{Allowed: true, Remaining: remaining}, nil
}

// GetQuota derives the quota summary from the current record. The legacy
// "pro" plan label is normalized to "forever" in this view.
func (a *Authority) GetQuota(ctx context.Context) (QuotaResult, error) {
	rec, err := a.store.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read entitlement store for quota")
		return QuotaResult{}, errkind.New(errkind.KindStore, "get_quota", MsgQuotaFailed)
	}

	plan := rec.Plan
	if plan == entitlement.PlanProLegacy {
		plan = entitlement.PlanForever
	}

	return QuotaResult{
		Plan:      plan,
		Used:      len(rec.UsedPages),
		PageQuota: rec.PageQuota,
		Remaining: rec.Remaining(),
	}, nil
}

// ResetQuota clears the consumed page set. Present for completeness and
// testing; no end-user control reaches it.
func (a *Authority) ResetQuota(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.store.Set(ctx, entitlement.Mutation{UsedPages: []string{}, SetUsedPages: true})
	if err != nil {
		log.Error().Err(err).Msg("Failed to reset page quota")
		return errkind.Wrap(errkind.KindStore, "reset_quota", "Failed to reset quota", err)
	}
	log.Info().Msg("Page quota reset")
	return nil
}

// Settings is the user-preferences slice of the entitlement record.
type Settings struct {
	Enabled bool              `json:"enabled"`
	Mode    entitlement.Mode  `json:"mode"`
	Theme   entitlement.Theme `json:"theme"`
}

// SettingsUpdate carries a partial settings change. Nil fields are left
// untouched.
type SettingsUpdate struct {
	Enabled *bool              `json:"enabled,omitempty"`
	Mode    *entitlement.Mode  `json:"mode,omitempty"`
	Theme   *entitlement.Theme `json:"theme,omitempty"`
}

// GetSettings returns the current user preferences.
func (a *Authority) GetSettings(ctx context.Context) (Settings, error) {
	rec, err := a.store.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read entitlement store for settings")
		return Settings{}, errkind.New(errkind.KindStore, "get_settings", "Failed to get settings")
	}
	rec.ApplyDefaults()
	return Settings{Enabled: rec.Enabled, Mode: rec.Mode, Theme: rec.Theme}, nil
}

// UpdateSettings applies a partial preferences change and returns the
// resulting settings.
func (a *Authority) UpdateSettings(ctx context.Context, update SettingsUpdate) (Settings, error) {
	if update.Mode != nil && !update.Mode.Valid() {
		return Settings{}, errkind.Validation("update_settings", "invalid mode")
	}
	if update.Theme != nil && !update.Theme.Valid() {
		return Settings{}, errkind.Validation("update_settings", "invalid theme")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	mut := entitlement.Mutation{Enabled: update.Enabled, Mode: update.Mode, Theme: update.Theme}
	if err := a.store.Set(ctx, mut); err != nil {
		log.Error().Err(err).Msg("Failed to persist settings")
		return Settings{}, errkind.Wrap(errkind.KindStore, "update_settings", "Failed to save settings", err)
	}
	return a.GetSettings(ctx)
}
