package entitlement

import (
	"net/url"
	"strings"
)

// Status is the account status. "pro" is a legacy alias kept for
// compatibility with records written before the plan field became the
// source of truth for the paid tier.
type Status string

const (
	StatusFree Status = "free"
	StatusPro  Status = "pro"
)

// Plan is the pricing plan. Forever is the single paid tier and is
// synonymous with unlimited page quota.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanForever Plan = "forever"

	// PlanProLegacy appears in records written before "forever" became
	// the single source of truth for the paid-tier name.
	PlanProLegacy Plan = "pro"
)

// Mode selects what the inspector tooltip shows.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeTailwind Mode = "tailwind"
	ModeCSS      Mode = "css"
	ModeConvert  Mode = "convert"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeTailwind, ModeCSS, ModeConvert:
		return true
	}
	return false
}

// Theme is the tooltip color theme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeDark || t == ThemeLight
}

// Unlimited is the sentinel page quota for the forever plan.
const Unlimited = -1

// DefaultPageQuota is the free-plan page ceiling.
const DefaultPageQuota = 3

// Record is the persisted entitlement aggregate plus the two presentation
// preferences that share the same store.
type Record struct {
	Enabled          bool     `json:"enabled"`
	Mode             Mode     `json:"mode"`
	Theme            Theme    `json:"theme"`
	Status           Status   `json:"status"`
	Plan             Plan     `json:"plan"`
	ProductPermalink string   `json:"productPermalink"`
	LicenseKey       string   `json:"licenseKey"`
	PageQuota        int      `json:"pageQuota"`
	UsedPages        []string `json:"usedPages"`
}

// DefaultRecord returns the record seeded at installation.
func DefaultRecord() Record {
	return Record{
		Enabled:   true,
		Mode:      ModeAuto,
		Theme:     ThemeDark,
		Status:    StatusFree,
		Plan:      PlanFree,
		PageQuota: DefaultPageQuota,
		UsedPages: []string{},
	}
}

// ApplyDefaults fills zero-valued fields with installation defaults.
// Readers of a partial record always see a complete one.
func (r *Record) ApplyDefaults() {
	if r.Mode == "" {
		r.Mode = ModeAuto
	}
	if r.Theme == "" {
		r.Theme = ThemeDark
	}
	if r.Status == "" {
		r.Status = StatusFree
	}
	if r.Plan == "" {
		r.Plan = PlanFree
	}
	if r.PageQuota == 0 {
		r.PageQuota = DefaultPageQuota
	}
	if r.UsedPages == nil {
		r.UsedPages = []string{}
	}
}

// IsUnlimited reports whether a page quota value means "no ceiling".
func IsUnlimited(quota int) bool {
	return quota < 0
}

// HasUsedPage reports whether a normalized key was already consumed.
func (r *Record) HasUsedPage(key string) bool {
	for _, used := range r.UsedPages {
		if used == key {
			return true
		}
	}
	return false
}

// Remaining returns the number of distinct pages still available, or
// Unlimited for the forever plan.
func (r *Record) Remaining() int {
	if r.Plan == PlanForever || IsUnlimited(r.PageQuota) {
		return Unlimited
	}
	return r.PageQuota - len(r.UsedPages)
}

// NormalizePageKey derives the canonical page identifier from
// origin+pathname: trailing slashes stripped, then lowercased. Every
// component that reads or writes UsedPages must use this, or the set
// silently fragments.
func NormalizePageKey(raw string) string {
	return strings.ToLower(strings.TrimRight(raw, "/"))
}

// PageKeyFromURL builds the normalized page identifier for a URL,
// ignoring query and fragment.
func PageKeyFromURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	origin := u.Scheme + "://" + u.Host
	return NormalizePageKey(origin + u.Path)
}
