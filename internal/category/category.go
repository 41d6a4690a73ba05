// Package category defines the compile-time catalog of risk categories.
package category

// Kind distinguishes the shape of entries stored in a category's index.
type Kind int

const (
	KindIP Kind = iota
	KindEmail
)

func (k Kind) String() string {
	switch k {
	case KindIP:
		return "ip"
	case KindEmail:
		return "email"
	default:
		return "unknown"
	}
}

// Tier is the classifier's output risk level, also used to rank categories.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Category is a named bucket tied to one feed URL, one kind, and one tier.
type Category struct {
	Name string
	Tier Tier
	Kind Kind
	URL  string
}

// MXCacheIndex is the reserved registry name for the MX-lookup result cache.
// It is not part of the tiered catalog and is never fetched from a feed.
const MXCacheIndex = "mx_cache"

// catalog lists every category grouped by tier. The IP sub-classifier does
// not walk this slice; it walks ipConsultationOrder below.
var catalog = []Category{
	{Name: "criminal_network_ip", Tier: TierHigh, Kind: KindIP},
	{Name: "malicious_ip", Tier: TierHigh, Kind: KindIP},
	{Name: "tor_network_ip", Tier: TierHigh, Kind: KindIP},
	{Name: "recent_attacker_ip", Tier: TierHigh, Kind: KindIP},
	{Name: "disposable_email", Tier: TierHigh, Kind: KindEmail},
	{Name: "week_attacker_ip", Tier: TierMedium, Kind: KindIP},
	{Name: "suspicious_ip", Tier: TierMedium, Kind: KindIP},
	{Name: "vpn_ip", Tier: TierMedium, Kind: KindIP},
	{Name: "datacenter_ip", Tier: TierMedium, Kind: KindIP},
	{Name: "privacy_email", Tier: TierMedium, Kind: KindEmail},
	{Name: "reported_ip", Tier: TierLow, Kind: KindIP},
	{Name: "old_attacker_ip", Tier: TierLow, Kind: KindIP},
}

// defaultURL is a placeholder; operators override per-category URLs via config.
func defaultURL(name string) string {
	return "https://feeds.example.invalid/" + name + ".txt"
}

// Catalog returns the fixed set of categories with default feed URLs applied.
// urlOverrides maps a category name to an operator-supplied feed URL.
func Catalog(urlOverrides map[string]string) []Category {
	out := make([]Category, len(catalog))
	for i, c := range catalog {
		if u, ok := urlOverrides[c.Name]; ok && u != "" {
			c.URL = u
		} else {
			c.URL = defaultURL(c.Name)
		}
		out[i] = c
	}
	return out
}

// Names returns just the category names, in catalog order.
func Names() []string {
	out := make([]string, len(catalog))
	for i, c := range catalog {
		out[i] = c.Name
	}
	return out
}

// ipConsultationOrder is the exact sequence the risk classifier walks for
// the IP sub-classifier. It is NOT a re-derivation of the tier table above:
// old_attacker_ip sits in this sequence ahead of reported_ip even though
// both carry tier "low" in the catalog, so the order is written out
// literally rather than grouped by tier.
var ipConsultationOrder = []string{
	"criminal_network_ip", "malicious_ip", "tor_network_ip", "recent_attacker_ip",
	"week_attacker_ip", "suspicious_ip", "vpn_ip", "datacenter_ip", "old_attacker_ip",
	"reported_ip",
}

// IPConsultationOrder returns the fixed order the IP sub-classifier checks
// categories in. The tier attached to a match comes from TierOf(name), not
// from this slice's position.
func IPConsultationOrder() []string {
	out := make([]string, len(ipConsultationOrder))
	copy(out, ipConsultationOrder)
	return out
}

// TierOf returns the declared tier for a category name, and false if unknown.
func TierOf(name string) (Tier, bool) {
	for _, c := range catalog {
		if c.Name == name {
			return c.Tier, true
		}
	}
	return TierNone, false
}
