// Package pricing holds the integer money arithmetic shared by carts,
// checkout sessions and orders. Amounts are minor currency units.
package pricing

import (
	"fmt"
	"sort"

	"golang.org/x/text/currency"
)

// DefaultTaxRate is 10% expressed in basis points.
const DefaultTaxRate TaxRate = 1000

// TaxRate is a flat tax rate in basis points (1/100 of a percent).
type TaxRate int64

// Apply returns the tax owed on amount, rounded down.
func (r TaxRate) Apply(amount int64) int64 {
	if r <= 0 || amount <= 0 {
		return 0
	}
	return amount * int64(r) / 10000
}

// LineTotal multiplies a unit price by a quantity.
func LineTotal(unitPrice int64, quantity int) int64 {
	return unitPrice * int64(quantity)
}

// Allocate splits amount across weights proportionally. Remainders go to
// the largest fractional shares first (ties by position), so the result
// always sums to amount.
func Allocate(amount int64, weights []int64) []int64 {
	if len(weights) == 0 {
		return nil
	}
	allocations := make([]int64, len(weights))
	if amount == 0 {
		return allocations
	}

	var totalWeight int64
	for _, w := range weights {
		if w > 0 {
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		base := amount / int64(len(weights))
		remainder := amount % int64(len(weights))
		for i := range allocations {
			allocations[i] = base
			if remainder > 0 {
				allocations[i]++
				remainder--
			}
		}
		return allocations
	}

	type share struct {
		idx       int
		remainder int64
	}
	shares := make([]share, len(weights))
	var distributed int64
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		allocations[i] = amount * w / totalWeight
		distributed += allocations[i]
		shares[i] = share{idx: i, remainder: amount * w % totalWeight}
	}

	left := amount - distributed
	if left <= 0 {
		return allocations
	}
	sort.SliceStable(shares, func(a, b int) bool {
		return shares[a].remainder > shares[b].remainder
	})
	for i := 0; left > 0; i = (i + 1) % len(shares) {
		allocations[shares[i].idx]++
		left--
	}
	return allocations
}

// Format renders a minor-unit amount with the currency's standard number of
// decimals, e.g. Format(1430, "INR") == "INR 14.30".
func Format(amount int64, code string) string {
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	if scale == 0 {
		return fmt.Sprintf("%s %s%d", code, sign, amount)
	}
	div := int64(1)
	for i := 0; i < scale; i++ {
		div *= 10
	}
	return fmt.Sprintf("%s %s%d.%0*d", code, sign, amount/div, scale, amount%div)
}
