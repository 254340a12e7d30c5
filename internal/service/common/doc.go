// Package common holds helpers shared by several services.
//
// It detects the current system actor (hostname/username) for receipts, finds
// and terminates processes that run installed files, and provides the marker
// lock that keeps two mutating runs from overlapping.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
