package web

import "embed"

// ShellFS embeds the application shell served at the root.
//
//go:embed index.html manifest.webmanifest
var ShellFS embed.FS

// StaticFS embeds static assets (css/js/icons).
//
//go:embed static/*
var StaticFS embed.FS
