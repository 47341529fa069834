// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time with go:embed so they ship in every
// distribution. `casegrounds config init` writes them out; the hierarchy
// they feed is documented in internal/config.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration,
// written to ~/.config/casegrounds/config.yaml. It holds machine-specific
// settings: storage locations, model endpoints, API keys.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for per-project configuration,
// written to .casegrounds.yaml in the working directory. It holds settings
// worth versioning alongside a matter: whitelist, chunking, search tuning.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
