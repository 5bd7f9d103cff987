// Package scripts embeds the default Risor hook scripts.
package scripts

import "embed"

// FS holds hooks/*.risor.
//
//go:embed hooks/*.risor
var FS embed.FS

// ParseHook is the path of the default post-scan hook inside FS.
const ParseHook = "hooks/parse.risor"
