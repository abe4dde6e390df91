// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package guide renders the manual model sources guide written next to the
// staged models.
package guide

import (
	"bytes"
	"io"
	"path/filepath"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark"

	"github.com/bodaay/stager/internal/assets"
	"github.com/bodaay/stager/internal/catalog"
)

// FileName is the guide written into the models directory.
const FileName = "Food101_Model_Sources.md"

// Model is one line of the run status section.
type Model struct {
	Name        string
	Description string
	Path        string
	Staged      bool
}

// Data feeds the template. A nil Models slice omits the status section.
type Data struct {
	Gallery string
	Models  []Model
}

var tmpl = template.Must(template.ParseFS(assets.TemplatesFS(), assets.ModelSources))

// Render writes the markdown guide to w.
func Render(w io.Writer, d Data) error {
	if d.Gallery == "" {
		d.Gallery = catalog.GalleryURL
	}
	return errors.Wrap(tmpl.ExecuteTemplate(w, assets.ModelSources, d), "render guide")
}

// HTML converts the markdown guide to HTML.
func HTML(w io.Writer, d Data) error {
	var md bytes.Buffer
	if err := Render(&md, d); err != nil {
		return err
	}
	return errors.Wrap(goldmark.Convert(md.Bytes(), w), "convert guide to html")
}

// Write renders the guide into dir and returns the written paths.
// With html set, an .html rendering is written alongside the markdown.
func Write(fsys afero.Fs, dir string, d Data, html bool) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create guide directory")
	}
	var md bytes.Buffer
	if err := Render(&md, d); err != nil {
		return nil, err
	}
	p := filepath.Join(dir, FileName)
	if err := afero.WriteFile(fsys, p, md.Bytes(), 0o644); err != nil {
		return nil, errors.Wrapf(err, "write %s", p)
	}
	paths := []string{p}
	if !html {
		return paths, nil
	}

	var out bytes.Buffer
	if err := goldmark.Convert(md.Bytes(), &out); err != nil {
		return paths, errors.Wrap(err, "convert guide to html")
	}
	hp := p[:len(p)-len(filepath.Ext(p))] + ".html"
	if err := afero.WriteFile(fsys, hp, out.Bytes(), 0o644); err != nil {
		return paths, errors.Wrapf(err, "write %s", hp)
	}
	return append(paths, hp), nil
}
