// Package clock provides a minimal injectable wall-clock abstraction.
//
// Subscription lifecycle rules are heavily time-dependent (start, expiry,
// grace windows). Injecting a Clock instead of calling time.Now directly
// keeps that logic deterministic under test.
//
// # Usage
//
//	c := clock.System()
//	now := c.Now()
//
// In tests, use a Fixed clock and advance it explicitly:
//
//	c := clock.NewFixed(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
//	c.AdvanceDays(15)
package clock
