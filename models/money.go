package models

import "math"

// Cents converts a stored decimal price to integer minor units, rounding
// half-up. All totals are computed in cents so per-line float drift cannot
// accumulate into the charged amount.
func Cents(price float64) int64 {
	return int64(math.Round(price * 100))
}

// LineTotalCents returns the charge for one cart line at the given stored
// price.
func LineTotalCents(price float64, quantity int) int64 {
	return Cents(price) * int64(quantity)
}
