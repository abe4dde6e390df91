// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package assets provides embedded templates.
package assets

import (
	"embed"
	"io/fs"
)

// templateFiles contains the embedded text templates.
//
//go:embed templates/*.tmpl
var templateFiles embed.FS

// TemplatesFS returns the filesystem holding the templates.
func TemplatesFS() fs.FS {
	sub, _ := fs.Sub(templateFiles, "templates")
	return sub
}

// ModelSources is the template name of the model sources guide.
const ModelSources = "model_sources.md.tmpl"
