// Package configs provides embedded configuration templates for vexus.
//
// Templates are embedded at build time so they ship with every binary.
// UserConfigTemplate is written by `vexus config init` to
// ~/.config/vexus/config.yaml.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/vexus/config.yaml)
//  3. Data directory config (.vexus.yaml)
//  4. Environment variables (VEXUS_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Settings here apply to every data directory on this machine.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
