// Package classifier implements the risk classifier: an IP sub-classifier,
// an email sub-classifier, and a merge algebra that combines their verdicts
// into one risk level and reason list. Classify's return value is a pure
// function of Deps and Input; it also records a Prometheus observation per
// call, a side effect that doesn't feed back into the result.
package classifier

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/riskcore/riskcored/internal/category"
	"github.com/riskcore/riskcored/internal/ipmatch"
	"github.com/riskcore/riskcored/internal/metrics"
	"github.com/riskcore/riskcored/internal/mxresolver"
	"github.com/riskcore/riskcored/internal/registry"
)

// mxCacheValidPrefix and mxCacheNoMXPrefix namespace the two possible
// outcomes within the single mx_cache index, which (like every index) is
// just a string set: presence of "valid:example.com" records a successful
// lookup, presence of "no_mx:example.com" records a negative one. A domain
// never gets both.
const (
	mxCacheValidPrefix = "valid:"
	mxCacheNoMXPrefix  = "no_mx:"
)

// trustedFreeProviders is the fixed set of free-mail domains the email
// sub-classifier treats as low risk rather than unknown.
var trustedFreeProviders = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"yahoo.com":      {},
	"ymail.com":      {},
	"icloud.com":     {},
	"me.com":         {},
	"mac.com":        {},
	"aol.com":        {},
	"protonmail.com": {},
	"proton.me":      {},
	"zoho.com":       {},
}

// MXLookuper is the subset of *mxresolver.Resolver the classifier depends
// on, so tests can substitute a fake.
type MXLookuper interface {
	LookupMX(ctx context.Context, domain string) ([]mxresolver.MXRecord, error)
}

// Deps are the classifier's external dependencies, injected so it stays a
// pure function of (Deps, Input) with no package-level state.
type Deps struct {
	Registry *registry.Registry
	Matcher  *ipmatch.Matcher
	Resolver MXLookuper
	Log      *slog.Logger
}

// Input is one classification request. Either field may be empty; an empty
// field is simply not classified on that side.
type Input struct {
	Email string
	IP    string
}

// Result is the classifier's output.
type Result struct {
	Level   string
	Reasons []string
}

// verdict is an internal (tier, reasons) pair, before the two sides are
// merged.
type verdict struct {
	tier    category.Tier
	reasons []string
}

// Classify never fails: every internal error (a malformed MX lookup, a
// rate-limited resolver) collapses to the documented no_mx/invalid_email
// outcome rather than propagating to the caller.
func Classify(ctx context.Context, deps Deps, in Input) Result {
	start := time.Now()
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	cur := verdict{tier: category.TierNone}
	if in.IP != "" {
		cur = classifyIP(deps, in.IP)
	}

	next := verdict{tier: category.TierNone}
	if in.Email != "" {
		next = classifyEmail(ctx, deps, log, in.Email)
	}

	tier, reasons := merge(cur, next)
	result := Result{Level: tier.String(), Reasons: reasons}
	metrics.ObserveClassification(result.Level, in.Email != "", in.IP != "", time.Since(start))
	return result
}

// classifyIP consults categories in the fixed consultation order and
// returns the first hit's tier and reason.
func classifyIP(deps Deps, ip string) verdict {
	for _, name := range category.IPConsultationOrder() {
		if deps.Matcher.Matches(name, ip) {
			tier, _ := category.TierOf(name)
			return verdict{tier: tier, reasons: []string{name}}
		}
	}
	return verdict{tier: category.TierNone}
}

// classifyEmail decides in order: disposable, privacy, trusted free
// provider, then the MX cache/live-lookup fallback.
func classifyEmail(ctx context.Context, deps Deps, log *slog.Logger, email string) verdict {
	domain := emailDomain(email)

	if deps.Registry.Lookup("disposable_email", domain) {
		return verdict{tier: category.TierHigh, reasons: []string{"disposable_email"}}
	}
	if deps.Registry.Lookup("privacy_email", domain) {
		return verdict{tier: category.TierMedium, reasons: []string{"privacy_email"}}
	}
	if _, ok := trustedFreeProviders[domain]; ok {
		return verdict{tier: category.TierLow, reasons: []string{"free_email"}}
	}

	return mxVerdict(ctx, deps, log, domain)
}

func emailDomain(email string) string {
	idx := strings.LastIndexByte(email, '@')
	if idx < 0 {
		return strings.ToLower(strings.TrimSpace(email))
	}
	return strings.ToLower(strings.TrimSpace(email[idx+1:]))
}

func mxVerdict(ctx context.Context, deps Deps, log *slog.Logger, domain string) verdict {
	if deps.Registry.Lookup(category.MXCacheIndex, mxCacheValidPrefix+domain) {
		return verdict{tier: category.TierNone}
	}
	if deps.Registry.Lookup(category.MXCacheIndex, mxCacheNoMXPrefix+domain) {
		return verdict{tier: category.TierHigh, reasons: []string{"invalid_email"}}
	}

	records, err := deps.Resolver.LookupMX(ctx, domain)
	if err != nil {
		if errors.Is(err, mxresolver.ErrRateLimited) {
			// Degradation, not an error: every resolver was out of tokens,
			// so this domain is treated as no_mx same as any other failed
			// lookup, but it's worth a Warn and its own counter since it
			// means the resolver pool is undersized for the request rate,
			// not that the domain itself is invalid.
			log.Warn("mx lookup rate limited, treating as no_mx", "domain", domain)
			metrics.MXRateLimitedTotal.Inc()
		} else {
			log.Debug("mx lookup failed, treating as no_mx", "domain", domain, "error", err)
		}
		deps.Registry.Insert(category.MXCacheIndex, mxCacheNoMXPrefix+domain)
		return verdict{tier: category.TierHigh, reasons: []string{"invalid_email"}}
	}
	if len(records) == 0 {
		deps.Registry.Insert(category.MXCacheIndex, mxCacheNoMXPrefix+domain)
		return verdict{tier: category.TierHigh, reasons: []string{"invalid_email"}}
	}

	deps.Registry.Insert(category.MXCacheIndex, mxCacheValidPrefix+domain)
	return verdict{tier: category.TierNone}
}

// merge applies the priority/override table: the numeric max of the two
// tiers, except that a low-tier IP verdict is cleaned entirely by a clean
// (none) email verdict.
func merge(cur, next verdict) (category.Tier, []string) {
	if cur.tier == category.TierLow && next.tier == category.TierNone {
		return category.TierNone, []string{}
	}

	final := cur.tier
	if next.tier > final {
		final = next.tier
	}

	switch {
	case final == next.tier && next.tier != category.TierNone:
		return final, uniqueReasons(next.reasons, cur.reasons)
	case final == cur.tier:
		return final, cur.reasons
	default:
		return final, uniqueReasons(next.reasons, cur.reasons)
	}
}

func uniqueReasons(first, second []string) []string {
	seen := make(map[string]struct{}, len(first)+len(second))
	out := make([]string, 0, len(first)+len(second))
	for _, lists := range [][]string{first, second} {
		for _, r := range lists {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
