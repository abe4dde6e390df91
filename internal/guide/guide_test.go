// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package guide

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Data{}))
	out := buf.String()
	assert.Contains(t, out, "# Food-101 Pre-trained Model Sources")
	assert.Contains(t, out, "https://developer.apple.com/machine-learning/models/")
	assert.Contains(t, out, "hollance/food-101-coreml")
	assert.Contains(t, out, "ct.convert(tf_model, source='tensorflow')")
	assert.NotContains(t, out, "Status of this run")
}

func TestRender_Status(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Data{Models: []Model{
		{Name: "MobileNetV2", Description: "small", Path: "models/MobileNetV2.mlmodel", Staged: true},
		{Name: "ResNet50", Description: "large"},
	}}))
	out := buf.String()
	assert.Contains(t, out, "- **MobileNetV2** (small): staged at `models/MobileNetV2.mlmodel`")
	assert.Contains(t, out, "- **ResNet50** (large): not downloaded")
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, Data{}))
	assert.Contains(t, buf.String(), "<h1>Food-101 Pre-trained Model Sources</h1>")
	assert.Contains(t, buf.String(), "<code>hollance/food-101-coreml</code>")
}

func TestWrite(t *testing.T) {
	fs := afero.NewMemMapFs()

	paths, err := Write(fs, "/models", Data{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("/models", FileName)}, paths)

	paths, err = Write(fs, "/models", Data{}, true)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join("/models", "Food101_Model_Sources.html"), paths[1])

	data, err := afero.ReadFile(fs, paths[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h2>Option 1: Apple")
}
