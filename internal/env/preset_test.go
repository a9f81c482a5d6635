package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const presetYAML = `presets:
  - name: shallow-duct
    description: 100 m isovelocity channel over a sand bottom.
    environment:
      profile:
        kind: isovelocity
        surface_speed: 1500
      bathymetry:
        kind: flat
        depth: 100
      surface:
        loss: 1.0
      bottom:
        speed: 1700
        density: 1.8
  - name: deep-munk
    environment:
      profile:
        kind: munk
        axis_depth: 1300
        axis_speed: 1500
      bathymetry:
        kind: flat
        depth: 5000
      surface:
        loss: 1.0
      bottom:
        speed: 1600
        density: 1.5
`

func writePresetFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPresets(t *testing.T) {
	presets, err := LoadPresets(writePresetFile(t, presetYAML))
	require.NoError(t, err)
	require.Len(t, presets, 2)

	duct, err := FindPreset(presets, "shallow-duct")
	require.NoError(t, err)
	require.Equal(t, 100.0, duct.Environment.BottomDepth(0))
	require.Equal(t, 1500.0, duct.Environment.SoundSpeed(50))

	_, err = FindPreset(presets, "missing")
	require.Error(t, err)
}

func TestLoadPresetsRejectsInvalidEnvironment(t *testing.T) {
	bad := `presets:
  - name: broken
    environment:
      profile:
        kind: isovelocity
        surface_speed: -10
      bathymetry:
        kind: flat
        depth: 100
      surface:
        loss: 1.0
      bottom:
        speed: 1700
        density: 1.8
`
	_, err := LoadPresets(writePresetFile(t, bad))
	require.ErrorIs(t, err, ErrInvalidEnvironment)
}

func TestLoadPresetsRejectsDuplicateNames(t *testing.T) {
	dup := presetYAML + `  - name: shallow-duct
    environment:
      profile:
        kind: isovelocity
        surface_speed: 1500
      bathymetry:
        kind: flat
        depth: 50
      surface:
        loss: 1.0
      bottom:
        speed: 1700
        density: 1.8
`
	_, err := LoadPresets(writePresetFile(t, dup))
	require.Error(t, err)
}
