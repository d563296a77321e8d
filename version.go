package chanflow

import _ "embed"

// Version is the release of the library and the chanflow command.
//
//go:embed VERSION
var Version string
