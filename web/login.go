// Package web embeds the assets the engine serves itself, as opposed to
// the user's own static tree under <root>/public/.
//
// Grounded on sovereign/web/embed.go's //go:embed all:dist pattern,
// adapted from an embedded SPA build to a single embedded login page —
// §4.6 requires only one engine-owned asset (the unauthenticated landing
// page), not a whole admin UI bundle.
package web

import "embed"

//go:embed login.html
var loginFS embed.FS

// LoginPage returns the embedded login page's contents.
func LoginPage() []byte {
	data, err := loginFS.ReadFile("login.html")
	if err != nil {
		// login.html is embedded at build time; a read failure here means
		// the embed directive itself is broken, not a runtime condition.
		panic("web: login.html missing from embed: " + err.Error())
	}
	return data
}
