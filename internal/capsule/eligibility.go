package capsule

// Eligibility predicates shared by the sweeper and every read path.
// All of them are pure functions of the stored timestamps and the given
// instant; none trust a cached status to be fresh.

// PromoteDue reports whether the sealed -> ready transition applies at now.
func PromoteDue(c *Capsule, now int64) bool {
	return c.Status == Sealed && c.DeletedAt == nil && now >= c.UnlocksAt
}

// EffectiveStatus is the status a reader should act on at now. A sealed row
// whose unlock time has passed is ready even if no sweep has promoted it.
func EffectiveStatus(c *Capsule, now int64) Status {
	if PromoteDue(c, now) {
		return Ready
	}
	return c.Status
}

// revealDelay returns the reveal delay when the anonymity flags are
// consistent and in range. Any other combination means reveal does not apply.
func revealDelay(c *Capsule) (int64, bool) {
	if !c.IsAnonymous || c.RevealDelaySeconds == nil {
		return 0, false
	}
	d := *c.RevealDelaySeconds
	if d < 0 || d > MaxRevealDelaySeconds {
		return 0, false
	}
	return d, true
}

// RevealAtFor returns the reveal instant for a capsule opened at openedAt,
// or nil when the capsule is not a valid anonymous capsule.
func RevealAtFor(c *Capsule, openedAt int64) *int64 {
	d, ok := revealDelay(c)
	if !ok {
		return nil
	}
	at := openedAt + d
	return &at
}

// RevealDue reports whether the one-time sender reveal should fire at now.
func RevealDue(c *Capsule, now int64) bool {
	d, ok := revealDelay(c)
	if !ok || c.DeletedAt != nil {
		return false
	}
	if c.OpenedAt == nil || c.RevealAt == nil || c.SenderRevealedAt != nil {
		return false
	}
	if *c.RevealAt != *c.OpenedAt+d {
		return false
	}
	return now >= *c.RevealAt
}

// SenderHidden reports whether sender identity must be masked for anyone but
// the sender. Inconsistent anonymity flags stay hidden.
func SenderHidden(c *Capsule) bool {
	if c.SenderRevealedAt != nil {
		return false
	}
	return c.IsAnonymous || c.RevealDelaySeconds != nil
}

// HintEligible reports whether hints may be disclosed for c.
func HintEligible(c *Capsule) bool {
	if _, ok := revealDelay(c); !ok {
		return false
	}
	return c.DeletedAt == nil && c.OpenedAt != nil && c.SenderRevealedAt == nil
}
