package order

import (
	"fmt"
	"strings"

	"github.com/example/agent-commerce/internal/domain/pricing"
)

// SummaryText renders an order for a conversational caller to read out.
func SummaryText(o *Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s is %s.\n", o.ID, o.Status)
	if o.CustomerName != nil && *o.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", *o.CustomerName)
	}
	fmt.Fprintf(&b, "Placed: %s\n", o.CreatedAt.Format("2 Jan 2006 15:04 MST"))
	for _, l := range o.Lines {
		name := l.Name
		if l.Variant != "" {
			name += " (" + l.Variant + ")"
		}
		fmt.Fprintf(&b, "- %d x %s: %s\n", l.Quantity, name, pricing.Format(l.LineTotal, l.Currency))
	}
	fmt.Fprintf(&b, "Subtotal: %s\n", pricing.Format(o.Subtotal, o.Currency))
	if o.Tax > 0 {
		fmt.Fprintf(&b, "Tax: %s\n", pricing.Format(o.Tax, o.Currency))
	}
	if o.Fulfillment > 0 {
		fmt.Fprintf(&b, "Shipping: %s\n", pricing.Format(o.Fulfillment, o.Currency))
	}
	fmt.Fprintf(&b, "Total: %s", pricing.Format(o.Total, o.Currency))
	if n := len(o.StatusHistory); n > 0 {
		last := o.StatusHistory[n-1]
		fmt.Fprintf(&b, "\nLatest update: %s", last.Status)
		if last.Description != nil && *last.Description != "" {
			fmt.Fprintf(&b, ", %s", *last.Description)
		}
	}
	return b.String()
}
