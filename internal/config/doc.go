// Package config defines the formulary settings and loads them in layers:
// XDG-based defaults, an optional YAML file and FORMULARY_* environment
// variables. Save writes the resolved settings back as YAML.
package config
