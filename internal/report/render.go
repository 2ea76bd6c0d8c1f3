package report

import (
	"fmt"
	"strings"
)

// DateLayout is dd.mm.yyyy.
const DateLayout = "02.01.2006"

// RenderTotals formats the all-time counts reply.
func RenderTotals(label string, t *Totals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Report: %s\n", label)
	fmt.Fprintf(&b, "✅ Total subscriptions: %d\n", t.Subscribed)
	fmt.Fprintf(&b, "🚪 Total unsubscriptions: %d", t.Unsubscribed)
	return b.String()
}

// RenderToday formats the on-demand reply for the current local day.
func RenderToday(label string, r *DayReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Report: %s\n", label)
	fmt.Fprintf(&b, "📅 Today: %s\n", r.DateString())
	fmt.Fprintf(&b, "✅ Subscriptions: %d\n", r.Subscribed)
	fmt.Fprintf(&b, "🚪 Unsubscriptions: %d", r.Unsubscribed)
	return b.String()
}

// RenderDaily formats the scheduled report for a completed day.
func RenderDaily(label string, r *DayReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Report: %s\n", label)
	fmt.Fprintf(&b, "📅 Date: %s\n", r.DateString())
	fmt.Fprintf(&b, "✅ New subscriptions: %d\n", r.Subscribed)
	fmt.Fprintf(&b, "🚪 Unsubscriptions: %d", r.Unsubscribed)
	return b.String()
}
