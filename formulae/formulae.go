// Package formulae embeds the descriptors shipped with formulary.
// They are used when no formula_dir is configured.
package formulae

import "embed"

// FS holds every built-in descriptor at its root.
//
//go:embed *.yaml
var FS embed.FS
