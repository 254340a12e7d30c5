// Package packager authors package descriptors.
//
// It computes the SHA-256 of a local file or a downloaded artifact, builds a
// single-rule descriptor, checks it the same way the descriptor store does,
// and writes it as YAML next to the other descriptors.
package packager
