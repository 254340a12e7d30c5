// Package formula defines the package descriptor: the declarative record of
// one released version of one package, naming the artifact to download, its
// SHA-256 checksum and how downloaded files map to installed names.
//
// It also defines the Receipt written once a descriptor has been installed.
package formula
