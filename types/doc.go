// Package types contains the data model shared by the op-runtest packages:
// the immutable per-test configuration, the closed set of terminal statuses
// and the outcome produced for every attempt.
package types
