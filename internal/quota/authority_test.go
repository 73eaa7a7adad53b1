package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/orvi2014/classcatch/internal/entitlement"
	"github.com/orvi2014/classcatch/internal/errkind"
)

type fakeVerifier struct {
	outcome VerifyOutcome
	err     error
	calls   int
}

func (f *fakeVerifier) Verify(ctx context.Context, key, permalink string) (VerifyOutcome, error) {
	f.calls++
	return f.outcome, f.err
}

type failingStore struct {
	entitlement.Store
	getErr error
	setErr error
}

func (f *failingStore) Get(ctx context.Context) (entitlement.Record, error) {
	if f.getErr != nil {
		return entitlement.Record{}, f.getErr
	}
	return f.Store.Get(ctx)
}

func (f *failingStore) Set(ctx context.Context, m entitlement.Mutation) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, m)
}

func newAuthority(verifier Verifier) (*Authority, *entitlement.MemoryStore) {
	store := entitlement.NewMemoryStore()
	return NewAuthority(store, verifier), store
}

func TestConsumeIdempotentOnRevisit(t *testing.T) {
	authority, _ := newAuthority(nil)
	ctx := context.Background()

	first, err := authority.CheckAndConsumePage(ctx, "https://x.com/a")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !first.Allowed || first.Remaining != 2 {
		t.Errorf("first visit = %+v, want allowed remaining 2", first)
	}

	second, err := authority.CheckAndConsumePage(ctx, "https://x.com/a")
	if err != nil {
		t.Fatalf("revisit: %v", err)
	}
	if !second.Allowed || second.Remaining != 2 {
		t.Errorf("revisit = %+v, want allowed remaining still 2", second)
	}

	status, err := authority.GetStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status.UsedPages) != 1 {
		t.Errorf("UsedPages = %v, want single entry", status.UsedPages)
	}
}

func TestConsumeQuotaBoundaryExact(t *testing.T) {
	authority, _ := newAuthority(nil)
	ctx := context.Background()

	wantRemaining := []int{2, 1, 0}
	for i, page := range []string{"https://x.com/a", "https://x.com/b", "https://x.com/c"} {
		result, err := authority.CheckAndConsumePage(ctx, page)
		if err != nil {
			t.Fatalf("consume %q: %v", page, err)
		}
		if !result.Allowed || result.Remaining != wantRemaining[i] {
			t.Errorf("consume %q = %+v, want allowed remaining %d", page, result, wantRemaining[i])
		}
	}

	denied, err := authority.CheckAndConsumePage(ctx, "https://x.com/d")
	if err != nil {
		t.Fatalf("consume 4th: %v", err)
	}
	if denied.Allowed || denied.Remaining != 0 {
		t.Errorf("4th page = %+v, want denied remaining 0", denied)
	}
	if denied.Message != MsgQuotaReached {
		t.Errorf("deny message = %q", denied.Message)
	}

	status, _ := authority.GetStatus(ctx)
	if len(status.UsedPages) != 3 {
		t.Errorf("UsedPages length = %d, want 3", len(status.UsedPages))
	}
}

func TestConsumeNormalizationEquivalence(t *testing.T) {
	authority, _ := newAuthority(nil)
	ctx := context.Background()

	if _, err := authority.CheckAndConsumePage(ctx, "HTTPS://X.com/p/"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	revisit, err := authority.CheckAndConsumePage(ctx, "https://x.com/p")
	if err != nil {
		t.Fatalf("revisit: %v", err)
	}
	if !revisit.Allowed || revisit.Remaining != 2 {
		t.Errorf("equivalent form = %+v, want revisit with remaining 2", revisit)
	}

	status, _ := authority.GetStatus(ctx)
	if len(status.UsedPages) != 1 {
		t.Errorf("UsedPages = %v, want one slot for both forms", status.UsedPages)
	}
}

func TestVerifyUpgradeIsImmediate(t *testing.T) {
	verifier := &fakeVerifier{outcome: VerifyOutcome{Valid: true}}
	authority, _ := newAuthority(verifier)
	ctx := context.Background()

	// Exhaust the free quota first.
	for _, page := range []string{"a", "b", "c"} {
		if _, err := authority.CheckAndConsumePage(ctx, "https://x.com/"+page); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}

	result, err := authority.VerifyLicense(ctx, "KEY-123", "classcatch")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Success || result.Status != entitlement.StatusPro || result.Plan != entitlement.PlanForever {
		t.Errorf("verify = %+v", result)
	}
	if result.PageQuota != entitlement.Unlimited {
		t.Errorf("PageQuota = %d, want unlimited", result.PageQuota)
	}

	// A brand-new page is allowed immediately, prior usage irrelevant.
	consume, err := authority.CheckAndConsumePage(ctx, "https://x.com/new")
	if err != nil {
		t.Fatalf("consume after upgrade: %v", err)
	}
	if !consume.Allowed || consume.Remaining != entitlement.Unlimited {
		t.Errorf("post-upgrade consume = %+v, want allowed unlimited", consume)
	}
}

func TestVerifyNegativeMutatesNothing(t *testing.T) {
	verifier := &fakeVerifier{outcome: VerifyOutcome{Valid: false, Message: "That license does not exist"}}
	authority, store := newAuthority(verifier)
	ctx := context.Background()

	if _, err := authority.CheckAndConsumePage(ctx, "https://x.com/a"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	before, _ := store.Get(ctx)

	result, err := authority.VerifyLicense(ctx, "BAD-KEY", "classcatch")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Success {
		t.Error("invalid key reported success")
	}
	if result.Error != "That license does not exist" {
		t.Errorf("error = %q, want provider message verbatim", result.Error)
	}

	after, _ := store.Get(ctx)
	if after.Status != before.Status || after.Plan != before.Plan ||
		after.PageQuota != before.PageQuota || len(after.UsedPages) != len(before.UsedPages) {
		t.Errorf("negative verify mutated the record: before %+v after %+v", before, after)
	}
}

func TestVerifyProviderMessageFallback(t *testing.T) {
	verifier := &fakeVerifier{outcome: VerifyOutcome{Valid: false}}
	authority, _ := newAuthority(verifier)

	result, err := authority.VerifyLicense(context.Background(), "BAD-KEY", "classcatch")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Error != MsgInvalidKey {
		t.Errorf("error = %q, want %q", result.Error, MsgInvalidKey)
	}
}

func TestVerifyTransportFailure(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("connection refused")}
	authority, store := newAuthority(verifier)

	result, err := authority.VerifyLicense(context.Background(), "KEY-123", "classcatch")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Success || result.Error != MsgVerifyFailed {
		t.Errorf("transport failure = %+v, want %q", result, MsgVerifyFailed)
	}

	rec, _ := store.Get(context.Background())
	if rec.Status != entitlement.StatusFree {
		t.Errorf("transport failure mutated status to %q", rec.Status)
	}
}

func TestVerifyRequiresInputs(t *testing.T) {
	verifier := &fakeVerifier{outcome: VerifyOutcome{Valid: true}}
	authority, _ := newAuthority(verifier)

	tests := []struct {
		name      string
		key       string
		permalink string
	}{
		{"missing key", "", "classcatch"},
		{"missing permalink", "KEY-123", ""},
		{"both missing", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authority.VerifyLicense(context.Background(), tt.key, tt.permalink)
			if !errkind.IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
	if verifier.calls != 0 {
		t.Errorf("verifier called %d times for invalid input", verifier.calls)
	}
}

func TestConsumeRequiresPageKey(t *testing.T) {
	authority, _ := newAuthority(nil)
	_, err := authority.CheckAndConsumePage(context.Background(), "")
	if !errkind.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestGetQuotaNormalizesLegacyPlan(t *testing.T) {
	store := entitlement.NewMemoryStoreWith(entitlement.Record{
		Status:    entitlement.StatusPro,
		Plan:      entitlement.PlanProLegacy,
		PageQuota: entitlement.Unlimited,
	})
	authority := NewAuthority(store, nil)

	result, err := authority.GetQuota(context.Background())
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if result.Plan != entitlement.PlanForever {
		t.Errorf("Plan = %q, want forever", result.Plan)
	}
	if result.Remaining != entitlement.Unlimited {
		t.Errorf("Remaining = %d, want unlimited", result.Remaining)
	}

	// Status keeps its raw value in the status view.
	status, err := authority.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != entitlement.StatusPro {
		t.Errorf("Status = %q, want pro untouched", status.Status)
	}
}

func TestGetQuotaFreePlanCounts(t *testing.T) {
	authority, _ := newAuthority(nil)
	ctx := context.Background()

	if _, err := authority.CheckAndConsumePage(ctx, "https://x.com/a"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	result, err := authority.GetQuota(ctx)
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if result.Used != 1 || result.PageQuota != entitlement.DefaultPageQuota || result.Remaining != 2 {
		t.Errorf("quota = %+v", result)
	}
}

func TestResetQuotaClearsUsedPages(t *testing.T) {
	authority, store := newAuthority(nil)
	ctx := context.Background()

	for _, page := range []string{"a", "b"} {
		if _, err := authority.CheckAndConsumePage(ctx, "https://x.com/"+page); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}
	if err := authority.ResetQuota(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	rec, _ := store.Get(ctx)
	if len(rec.UsedPages) != 0 {
		t.Errorf("UsedPages = %v after reset", rec.UsedPages)
	}

	// The freed slots are usable again.
	result, err := authority.CheckAndConsumePage(ctx, "https://x.com/c")
	if err != nil {
		t.Fatalf("consume after reset: %v", err)
	}
	if !result.Allowed || result.Remaining != 2 {
		t.Errorf("consume after reset = %+v", result)
	}
}

func TestStoreFailuresSurfaceTypedErrors(t *testing.T) {
	boom := errors.New("disk gone")
	base := entitlement.NewMemoryStore()

	t.Run("get status", func(t *testing.T) {
		authority := NewAuthority(&failingStore{Store: base, getErr: boom}, nil)
		_, err := authority.GetStatus(context.Background())
		if !errkind.IsStore(err) {
			t.Errorf("err = %v, want store error", err)
		}
		if errkind.Message(err) != MsgStatusFailed {
			t.Errorf("message = %q, want %q", errkind.Message(err), MsgStatusFailed)
		}
	})

	t.Run("consume", func(t *testing.T) {
		authority := NewAuthority(&failingStore{Store: base, getErr: boom}, nil)
		_, err := authority.CheckAndConsumePage(context.Background(), "https://x.com/a")
		if !errkind.IsStore(err) || errkind.Message(err) != MsgConsumeFailed {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("consume persist", func(t *testing.T) {
		authority := NewAuthority(&failingStore{Store: base, setErr: boom}, nil)
		_, err := authority.CheckAndConsumePage(context.Background(), "https://x.com/a")
		if !errkind.IsStore(err) {
			t.Errorf("err = %v, want store error", err)
		}
	})

	t.Run("quota", func(t *testing.T) {
		authority := NewAuthority(&failingStore{Store: base, getErr: boom}, nil)
		_, err := authority.GetQuota(context.Background())
		if !errkind.IsStore(err) || errkind.Message(err) != MsgQuotaFailed {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("verify persist", func(t *testing.T) {
		verifier := &fakeVerifier{outcome: VerifyOutcome{Valid: true}}
		authority := NewAuthority(&failingStore{Store: base, setErr: boom}, verifier)
		result, err := authority.VerifyLicense(context.Background(), "KEY-123", "classcatch")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if result.Success || result.Error != MsgVerifyFailed {
			t.Errorf("result = %+v", result)
		}
	})
}

func TestSettingsRoundTrip(t *testing.T) {
	authority, _ := newAuthority(nil)
	ctx := context.Background()

	settings, err := authority.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if !settings.Enabled || settings.Mode != entitlement.ModeAuto || settings.Theme != entitlement.ThemeDark {
		t.Errorf("default settings = %+v", settings)
	}

	mode := entitlement.ModeConvert
	theme := entitlement.ThemeLight
	updated, err := authority.UpdateSettings(ctx, SettingsUpdate{Mode: &mode, Theme: &theme})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.Mode != entitlement.ModeConvert || updated.Theme != entitlement.ThemeLight {
		t.Errorf("updated settings = %+v", updated)
	}
	if !updated.Enabled {
		t.Error("partial update clobbered Enabled")
	}
}

func TestSettingsRejectInvalid(t *testing.T) {
	authority, _ := newAuthority(nil)

	bad := entitlement.Mode("fancy")
	if _, err := authority.UpdateSettings(context.Background(), SettingsUpdate{Mode: &bad}); !errkind.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}

	theme := entitlement.Theme("sepia")
	if _, err := authority.UpdateSettings(context.Background(), SettingsUpdate{Theme: &theme}); !errkind.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}
