// Package web holds the page template and stylesheet, embedded into the
// binary.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"strings"
)

//go:embed templates/*.tmpl static/*
var assets embed.FS

// Static returns the stylesheet directory, rooted so it can be served at
// /static.
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Templates parses the page templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"previewSrc": previewSrc,
	}).ParseFS(assets, "templates/*.tmpl")
}

// previewSrc marks the controller's own base64 data URL as safe for an img
// src. Anything else is left to the normal escaper.
func previewSrc(url string) interface{} {
	if strings.HasPrefix(url, "data:") && strings.Contains(url, ";base64,") {
		return template.URL(url)
	}
	return url
}
