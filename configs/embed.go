// Package configs embeds the default configuration files shipped with the service.
package configs

import _ "embed"

// DefaultRules is the rule set used when no RULES_PATH is configured.
//
//go:embed rules.yaml
var DefaultRules []byte
