// Package ui embeds the admin single-page app: the login form, the post list
// with its editor and preview, category management, the trash view and the
// sync, build and preview controls.
package ui

import (
	"embed"
	"io/fs"
)

//go:embed static
var rawFS embed.FS

// StaticFS is the embedded file tree rooted at the static/ directory.
// Serve it with http.FileServer(http.FS(ui.StaticFS)).
var StaticFS fs.FS

func init() {
	sub, err := fs.Sub(rawFS, "static")
	if err != nil {
		panic("ui: " + err.Error())
	}
	StaticFS = sub
}
