// Package integration exercises formulary end to end: descriptors on disk,
// artifacts served over HTTP and files placed into temporary directories.
package integration
