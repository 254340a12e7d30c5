// Package installer fetches, verifies and places package descriptors.
//
// Every artifact is downloaded and checked against its declared SHA-256
// before anything is staged. Staged files are then applied atomically into
// the bin directory or the package keg, and a receipt records what was
// placed. A failure while placing rolls back every file written by the run.
package installer
