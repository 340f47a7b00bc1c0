// Package abtest provides deterministic traffic splitting, metric
// accumulation, and statistical winner detection for two-variant
// experiments.
//
// A [Framework] holds experiment definitions and per-user variant
// assignments. Assignment is sticky and deterministic: a user's bucket is
// derived from an xxhash of their ID, so the same user always lands on
// the same variant for the life of a test, and assignments are mirrored
// into an optional [kv.Store] so they survive process restarts.
//
// Winner detection runs a two-proportion z-test on every tracked
// conversion. When both variants of an active two-variant test reach the
// configured minimum sample size and the z-score crosses the critical
// value for the configured confidence level, the higher-converting
// variant is marked the winner, the test completes, and an
// "abtest.winner" event is published.
//
// Every operation on an unknown test or variant ID is a silent no-op.
// The framework is designed to never be the reason a page fails to
// render.
package abtest
