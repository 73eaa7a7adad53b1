// Package gate decides, once per page session, whether features run on
// the current page. It asks the quota authority over the channel and
// caches the verdict so repeated feature entry points on the same page
// never consume quota twice.
package gate

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/channel"
	"github.com/orvi2014/classcatch/internal/entitlement"
	"github.com/orvi2014/classcatch/internal/metrics"
	"github.com/orvi2014/classcatch/internal/protocol"
	"github.com/orvi2014/classcatch/internal/quota"
)

// State is the cached verdict for the page session.
type State int

const (
	// Unresolved means no check has completed yet.
	Unresolved State = iota
	// Granted means features may run on this page.
	Granted
	// Blocked means the quota denied this page for the session.
	Blocked
)

// Decision is what a feature entry point gets back from Allow.
type Decision int

const (
	// Allowed lets the feature proceed.
	Allowed Decision = iota
	// Denied blocks the feature for this page session.
	Denied
	// Pending means a check is already in flight. The caller backs off
	// instead of stacking a duplicate request.
	Pending
)

// Upsell copy shown when the quota blocks a page.
const (
	UpsellTitle = "Free limit reached"
	UpsellBody  = "You've used your 3 free pages. Unlock more to keep copying Tailwind classes and CSS→Tailwind."
	UpgradeURL  = "https://robatdas.gumroad.com/l/classcatch"
)

// DefaultTimeout bounds a single quota check. A check that exceeds it
// counts as a transport failure and the gate fails open.
const DefaultTimeout = 10 * time.Second

// Gate guards one page session. Safe for concurrent use by multiple
// feature entry points.
type Gate struct {
	messenger channel.Messenger
	pageKey   string
	timeout   time.Duration

	// onDenied fires at most once per session, when the quota denies
	// the page. The authority's message rides along for display.
	onDenied func(message string)

	// onConsumed fires at most once per session, after a first-visit
	// grant with pages still remaining.
	onConsumed func(remaining int)

	// onDisabled fires once if gating shuts down for the session.
	onDisabled func()

	mu              sync.Mutex
	state           State
	inFlight        bool
	disabled        bool
	toastShown      bool
	quotaToastShown bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout overrides the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithDeniedHandler installs the once-per-session denial callback.
func WithDeniedHandler(fn func(message string)) Option {
	return func(g *Gate) { g.onDenied = fn }
}

// WithConsumedHandler installs the once-per-session remaining-pages
// callback.
func WithConsumedHandler(fn func(remaining int)) Option {
	return func(g *Gate) { g.onConsumed = fn }
}

// WithDisabledHandler installs the callback fired when gating shuts
// down for the rest of the session.
func WithDisabledHandler(fn func()) Option {
	return func(g *Gate) { g.onDisabled = fn }
}

// New creates a gate for the page at rawURL. The page key is derived
// the same way the authority derives it, so client and authority agree
// on identity.
func New(m channel.Messenger, rawURL string, opts ...Option) *Gate {
	g := &Gate{
		messenger: m,
		pageKey:   pageKey(rawURL),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PageKey returns the normalized key this gate guards.
func (g *Gate) PageKey() string {
	return g.pageKey
}

// State returns the cached verdict.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Allow resolves whether the feature may run on this page. The first
// call per session asks the authority; later calls return the cached
// verdict without touching the channel. A call that lands while the
// first check is still in flight returns Pending.
func (g *Gate) Allow(ctx context.Context) Decision {
	g.mu.Lock()
	if g.disabled {
		g.mu.Unlock()
		return Allowed
	}
	switch g.state {
	case Granted:
		g.mu.Unlock()
		return Allowed
	case Blocked:
		g.mu.Unlock()
		return Denied
	}
	if g.inFlight {
		g.mu.Unlock()
		return Pending
	}
	g.inFlight = true
	m := g.messenger
	g.mu.Unlock()

	resp, err := g.check(ctx, m)

	g.mu.Lock()
	g.inFlight = false
	if err != nil || resp.Error != "" {
		// The channel or the store failed, not the quota. Never lock a
		// user out of a page over infrastructure trouble.
		g.state = Granted
		g.mu.Unlock()
		metrics.GateResolutions.WithLabelValues("fail_open").Inc()
		log.Warn().Err(err).Str("page", g.pageKey).Str("responseError", resp.Error).Msg("Quota check failed, allowing page")
		return Allowed
	}
	if resp.Allowed {
		g.state = Granted
		g.mu.Unlock()
		metrics.GateResolutions.WithLabelValues("granted").Inc()
		if g.ConsumeToast(resp.Remaining) && g.onConsumed != nil {
			g.onConsumed(resp.Remaining)
		}
		return Allowed
	}
	g.state = Blocked
	showToast := !g.toastShown
	g.toastShown = true
	g.mu.Unlock()

	metrics.GateResolutions.WithLabelValues("blocked").Inc()
	if showToast && g.onDenied != nil {
		msg := resp.Message
		if msg == "" {
			msg = quota.MsgQuotaReached
		}
		g.onDenied(msg)
	}
	return Denied
}

// ConsumeToast reports whether the remaining-pages toast should show.
// It fires at most once per session, and only for a finite positive
// remaining count.
func (g *Gate) ConsumeToast(remaining int) bool {
	if remaining <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.quotaToastShown {
		return false
	}
	g.quotaToastShown = true
	return true
}

// Disable turns gating off for the rest of the session. Every later
// Allow grants without touching the channel. Called when the channel
// goes away for good.
func (g *Gate) Disable() {
	g.mu.Lock()
	already := g.disabled
	g.disabled = true
	g.state = Granted
	g.mu.Unlock()

	if !already && g.onDisabled != nil {
		g.onDisabled()
	}
}

// Invalidate resets the gate after the channel goes away. The next
// Allow call runs a fresh check over a new messenger.
func (g *Gate) Invalidate(m channel.Messenger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messenger = m
	g.state = Unresolved
	g.inFlight = false
}

func pageKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return entitlement.NormalizePageKey(rawURL)
	}
	return entitlement.PageKeyFromURL(u)
}

func (g *Gate) check(ctx context.Context, m channel.Messenger) (protocol.ConsumePageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	env, err := protocol.NewEnvelope("", protocol.TypeCheckAndConsumePage, protocol.ConsumePageRequest{PageKey: g.pageKey})
	if err != nil {
		return protocol.ConsumePageResponse{}, err
	}
	reply, err := m.Send(ctx, env)
	if err != nil {
		return protocol.ConsumePageResponse{}, err
	}
	var resp protocol.ConsumePageResponse
	if err := protocol.DecodePayload(reply, &resp); err != nil {
		return protocol.ConsumePageResponse{}, err
	}
	return resp, nil
}
