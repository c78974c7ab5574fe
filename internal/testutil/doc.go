// Package testutil provides deterministic clocks and id generators for
// tests and scenario replays.
package testutil
