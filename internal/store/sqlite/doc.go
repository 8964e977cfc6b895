// Package sqlite persists completed package records into a single SQLite
// table keyed by package name. Writes are upserts, so a record that completes
// twice (after an aggregator Reset, for example) replaces the earlier row
// instead of violating the uniqueness constraint.
package sqlite
