// Package web embeds the HTML templates and static assets served by the chat.
package web

import "embed"

// Templates holds the page templates: base.html plus one file per page.
//
//go:embed templates/*.html
var Templates embed.FS

// Static holds the stylesheet and browser scripts served under /static/.
//
//go:embed static
var Static embed.FS
