// Package formula implements the descriptor store.
//
// A Repository reads descriptors from an fs.FS, either a configured directory
// or the descriptors embedded in the binary. Files may be YAML or TOML; every
// file is checked against an embedded JSON schema before it is decoded and
// validated.
package formula
