package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 416, cfg.Model.Width)
	assert.Equal(t, 416, cfg.Model.Height)
	assert.Equal(t, 10, cfg.Detector.MaxDetections)
	assert.InDelta(t, 0.3, cfg.Detector.ProbThreshold, 1e-6)
	assert.InDelta(t, 0.45, cfg.Detector.NMSThreshold, 1e-6)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
model:
  path: /models/yolox_s.onnx
  librarypath: /usr/lib/libonnxruntime.so
  labels: /models/coco.txt
  width: 640
  height: 640
detector:
  maxdetections: 25
  probthreshold: 0.5
  nmsthreshold: 0.6
  workers: 4
log:
  level: debug
  debug: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/models/yolox_s.onnx", cfg.Model.ModelPath)
	assert.Equal(t, "/usr/lib/libonnxruntime.so", cfg.Model.LibraryPath)
	assert.Equal(t, "/models/coco.txt", cfg.Model.Labels)
	assert.Equal(t, 640, cfg.Model.Width)
	assert.Equal(t, 25, cfg.Detector.MaxDetections)
	assert.InDelta(t, 0.5, cfg.Detector.ProbThreshold, 1e-6)
	assert.Equal(t, 4, cfg.Detector.Workers)
	assert.True(t, cfg.Log.Debug)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "detector:\n  maxdetections: 25\n")
	t.Setenv("YOLOX_DETECTOR_MAXDETECTIONS", "50")
	t.Setenv("YOLOX_MODEL_PATH", "/env/model.onnx")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Detector.MaxDetections)
	assert.Equal(t, "/env/model.onnx", cfg.Model.ModelPath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero max detections", "detector:\n  maxdetections: 0\n"},
		{"threshold out of range", "detector:\n  probthreshold: 1.5\n"},
		{"size not a multiple of 32", "model:\n  width: 400\n"},
		{"negative size", "model:\n  height: -32\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
