// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package catalog lists the resources the stager command knows how to fetch.
package catalog

import (
	"path/filepath"
	"strings"

	"github.com/bodaay/stager/pkg/stager"
)

// Food101URL is the upstream location of the Food-101 archive (about 5GB).
const Food101URL = "https://data.vision.ee.ethz.ch/cvl/food-101.tar.gz"

// GalleryURL is Apple's Core ML model gallery.
const GalleryURL = "https://developer.apple.com/machine-learning/models/"

// Entry describes one stageable resource.
type Entry struct {
	Name        string
	Description string
	URLs        []string
	File        string // file name under the models directory; empty for datasets
	Archive     bool
	Layout      string
	RetryLimit  int
	ManualSteps []string
}

// Food101 returns the dataset entry.
func Food101() Entry {
	return Entry{
		Name:        "food-101",
		Description: "Food-101: 101 food categories, 101,000 images",
		URLs:        []string{Food101URL},
		Archive:     true,
		Layout:      "images",
		RetryLimit:  1,
		ManualSteps: []string{
			"Check your internet connection and run the command again",
			"Or download " + Food101URL + " by hand and place it next to the dataset root; it is reused instead of downloaded",
		},
	}
}

var models = []Entry{
	{
		Name:        "MobileNetV2",
		Description: "General image classification, lightweight (~14MB)",
		URLs: []string{
			"https://storage.googleapis.com/download.tensorflow.org/models/tflite/coreml/MobileNetV2.mlmodel",
			"https://docs-assets.developer.apple.com/coreml/models/Image/Classification/MobileNetV2/MobileNetV2Int8LUT.mlmodel",
		},
		File:       "MobileNetV2.mlmodel",
		RetryLimit: 3,
	},
	{
		Name:        "ResNet50",
		Description: "High accuracy image classification (~100MB)",
		URLs: []string{
			"https://docs-assets.developer.apple.com/coreml/models/Image/Classification/ResNet50/ResNet50.mlmodel",
		},
		File:       "ResNet50.mlmodel",
		RetryLimit: 3,
	},
}

// Models returns the model entries in the order they are staged.
func Models() []Entry {
	out := make([]Entry, len(models))
	for i, m := range models {
		m.URLs = append([]string(nil), m.URLs...)
		m.ManualSteps = []string{
			"Visit " + GalleryURL,
			"Download " + m.Name + " (or a Food-101 model)",
			"Drag the .mlmodel file into your Xcode project",
			"Build and run your project",
		}
		out[i] = m
	}
	return out
}

// Lookup finds a model entry by case-insensitive name.
func Lookup(name string) (Entry, bool) {
	for _, m := range Models() {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Entry{}, false
}

// DatasetTarget builds the Food-101 target under root. Non-empty urls
// replace the catalog candidates.
func DatasetTarget(root string, urls []string) stager.Target {
	e := Food101()
	if len(urls) > 0 {
		e.URLs = urls
	}
	return stager.Target{
		Name:       e.Name,
		URLs:       e.URLs,
		Dest:       filepath.Join(root, e.Name),
		ExtractDir: root,
		Archive:    true,
		Layout:     e.Layout,
		RetryLimit: e.RetryLimit,
	}
}

// Target builds the stager target for a model entry inside dir.
func (e Entry) Target(dir string) stager.Target {
	return stager.Target{
		Name:       e.Name,
		URLs:       e.URLs,
		Dest:       filepath.Join(dir, e.File),
		Archive:    e.Archive,
		Layout:     e.Layout,
		RetryLimit: e.RetryLimit,
	}
}
