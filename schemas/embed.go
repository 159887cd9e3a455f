// Package schemas holds the per-kind JSON schemas for generation parameters
// and poll results.
package schemas

import "embed"

//go:embed *.json
var FS embed.FS
