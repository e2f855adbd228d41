package capsule

// Hint disclosure thresholds, in percent of the reveal delay, keyed by the
// number of hints supplied. Ascending within each schedule.
var hintThresholds = map[int][]int64{
	1: {50},
	2: {35, 70},
	3: {30, 50, 85},
}

// Hint is a disclosed identity clue. Index is 1-based.
type Hint struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// CurrentHint returns the highest-indexed hint whose threshold has been
// crossed at now. Hints supersede each other; only one is returned.
//
// The elapsed fraction is computed from OpenedAt and RevealDelaySeconds on
// every call, using integer percent arithmetic so that exact boundaries
// (e.g. 3h of 6h = 50%) are inclusive.
func CurrentHint(c *Capsule, hints *Hints, now int64) (Hint, bool) {
	if !HintEligible(c) {
		return Hint{}, false
	}
	delay, _ := revealDelay(c)
	if delay <= 0 {
		return Hint{}, false
	}

	list := hints.List()
	thresholds := hintThresholds[len(list)]

	elapsed := max(now-*c.OpenedAt, 0)

	crossed := 0
	for i, pct := range thresholds {
		if elapsed*100 >= pct*delay {
			crossed = i + 1
		}
	}
	if crossed == 0 {
		return Hint{}, false
	}
	return Hint{Index: crossed, Text: list[crossed-1]}, true
}

// NextHintAt returns the instant the next hint becomes visible after now,
// if one remains.
func NextHintAt(c *Capsule, hints *Hints, now int64) (int64, bool) {
	if !HintEligible(c) {
		return 0, false
	}
	delay, _ := revealDelay(c)
	if delay <= 0 {
		return 0, false
	}
	for _, pct := range hintThresholds[len(hints.List())] {
		// ceil(pct*delay/100) so the instant satisfies the >= check above
		at := *c.OpenedAt + (pct*delay+99)/100
		if at > now {
			return at, true
		}
	}
	return 0, false
}
