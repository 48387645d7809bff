package checkout

import "time"

const day = 24 * time.Hour

// DefaultFulfillmentOptions returns the shipping choices offered on every
// session, with delivery windows relative to now.
func DefaultFulfillmentOptions(now time.Time) []FulfillmentOption {
	return []FulfillmentOption{
		{
			Type:                 "shipping",
			ID:                   "fulfillment_standard",
			Title:                "Standard Shipping",
			Subtitle:             "Arrives in 5-7 business days",
			Carrier:              "India Post",
			EarliestDeliveryTime: now.Add(5 * day),
			LatestDeliveryTime:   now.Add(7 * day),
			Subtotal:             50,
			Tax:                  5,
			Total:                55,
		},
		{
			Type:                 "shipping",
			ID:                   "fulfillment_express",
			Title:                "Express Shipping",
			Subtitle:             "Arrives in 2-3 business days",
			Carrier:              "BlueDart",
			EarliestDeliveryTime: now.Add(2 * day),
			LatestDeliveryTime:   now.Add(3 * day),
			Subtotal:             150,
			Tax:                  15,
			Total:                165,
		},
	}
}
