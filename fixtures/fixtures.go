// Package fixtures embeds the built-in scenario fixtures
package fixtures

import "embed"

//go:embed *.yaml
var FS embed.FS
