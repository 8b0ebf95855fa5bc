// Package configs embeds the annotated example configuration written by
// `docrag config init`.
package configs

import _ "embed"

// ExampleConfig is the annotated project config template (.docrag.yaml).
//
//go:embed docrag.example.yaml
var ExampleConfig string
