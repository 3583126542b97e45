// Package billing reconciles Stripe webhook events into subscription and
// verification state.
package billing

import "strings"

// TierPolicy classifies package names. Paid tiers confer verified status on
// the purchasing specialist; the free tier is excluded when counting a
// user's paid subscriptions.
type TierPolicy struct {
	paid map[string]struct{}
	free string
}

// NewTierPolicy builds a policy from the configured allow-list. Names are
// matched exactly after trimming surrounding whitespace.
func NewTierPolicy(paidTiers []string, freeTier string) TierPolicy {
	paid := make(map[string]struct{}, len(paidTiers))
	for _, name := range paidTiers {
		if name = strings.TrimSpace(name); name != "" {
			paid[name] = struct{}{}
		}
	}
	return TierPolicy{paid: paid, free: strings.TrimSpace(freeTier)}
}

// IsPaid reports whether name is on the paid-tier allow-list.
func (p TierPolicy) IsPaid(name string) bool {
	_, ok := p.paid[name]
	return ok
}

// IsFree reports whether name is the free or trial tier.
func (p TierPolicy) IsFree(name string) bool {
	return p.free != "" && name == p.free
}

// CountPaid returns how many of names are paid tiers.
func (p TierPolicy) CountPaid(names []string) int {
	n := 0
	for _, name := range names {
		if p.IsPaid(name) {
			n++
		}
	}
	return n
}

// CountNonFree returns how many of names are not the free tier.
func (p TierPolicy) CountNonFree(names []string) int {
	n := 0
	for _, name := range names {
		if !p.IsFree(name) {
			n++
		}
	}
	return n
}
