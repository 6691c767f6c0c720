// Package widget embeds the browser script customers add to their sites.
package widget

import _ "embed"

//go:embed widget.js
var Script []byte
