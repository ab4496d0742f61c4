// Package points holds the monotonic reconciliation of the locally cached
// user points against authoritative totals and incremental awards. The rule
// is a pure function so the HTTP result path, the push path and boot
// hydration all share it.
package points

import "smartbin-scan/internal/model"

// Update carries the numeric fields of an incoming scan_result or summary.
// Nil means the field was absent or non-numeric.
type Update struct {
	Awarded *int
	Total   *int
}

func FromResult(r model.ScanResult) Update {
	awarded := r.Points
	return Update{Awarded: &awarded, Total: r.TotalPoints}
}

func FromSummary(s model.Summary) Update {
	total := s.TotalPoints
	return Update{Total: &total}
}

// Merge returns the reconciled points value. A numeric total_points is
// authoritative: the award it announces is already included in it, so the
// result is max(current, total) and re-applying the same message is a no-op.
// Without a total the award is credited incrementally. The result never
// drops below current, so stale or duplicate deliveries of the HTTP and
// push copies of one result commute and credit the award exactly once.
func Merge(current int, u Update) int {
	if u.Total != nil {
		if *u.Total > current {
			return *u.Total
		}
		return current
	}

	if u.Awarded != nil && *u.Awarded > 0 {
		return current + *u.Awarded
	}

	return current
}
