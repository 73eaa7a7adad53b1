package entitlement

import "context"

// Mutation is a partial write against the entitlement record. Nil fields
// are left untouched. The store applies mutations last-writer-wins; the
// contract carries no compare-and-swap.
type Mutation struct {
	Enabled          *bool
	Mode             *Mode
	Theme            *Theme
	Status           *Status
	Plan             *Plan
	ProductPermalink *string
	LicenseKey       *string
	PageQuota        *int
	UsedPages        []string
	SetUsedPages     bool
}

func (m Mutation) apply(r *Record) {
	if m.Enabled != nil {
		r.Enabled = *m.Enabled
	}
	if m.Mode != nil {
		r.Mode = *m.Mode
	}
	if m.Theme != nil {
		r.Theme = *m.Theme
	}
	if m.Status != nil {
		r.Status = *m.Status
	}
	if m.Plan != nil {
		r.Plan = *m.Plan
	}
	if m.ProductPermalink != nil {
		r.ProductPermalink = *m.ProductPermalink
	}
	if m.LicenseKey != nil {
		r.LicenseKey = *m.LicenseKey
	}
	if m.PageQuota != nil {
		r.PageQuota = *m.PageQuota
	}
	if m.SetUsedPages {
		r.UsedPages = append([]string(nil), m.UsedPages...)
	}
}

// Store is the durable entitlement store shared by every context of the
// extension. Get fills installation defaults for missing fields; Set
// persists a partial record.
type Store interface {
	Get(ctx context.Context) (Record, error)
	Set(ctx context.Context, m Mutation) error
	Close() error
}

// Pointer helpers for building mutations.

func BoolPtr(v bool) *bool       { return &v }
func ModePtr(v Mode) *Mode       { return &v }
func ThemePtr(v Theme) *Theme    { return &v }
func StatusPtr(v Status) *Status { return &v }
func PlanPtr(v Plan) *Plan       { return &v }
func StringPtr(v string) *string { return &v }
func IntPtr(v int) *int          { return &v }
