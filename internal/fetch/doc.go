// Package fetch downloads descriptor artifacts into a local cache and
// verifies their SHA-256 before handing them to the installer.
//
// Downloads stream to a ".part" file while being hashed; only a verified
// file is renamed to its cache name, so the cache never holds bytes that
// failed verification.
package fetch
