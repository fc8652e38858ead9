package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/faceenhancer/enhance"
)

func TestEnhanceFlags_Precedence(t *testing.T) {
	paramsFile := filepath.Join(t.TempDir(), "params.env")
	require.NoError(t, os.WriteFile(paramsFile, []byte(
		"sharpen_strength=3\nnoise_reduction=2\ninput_path=/from/file\noutput_path=/out/file\nbatch_mode=true\n"), 0644))

	flags, err := parseEnhanceFlags([]string{"-config", paramsFile, "-i", "in.jpg", "-sharpen", "0.5", "-scale", "2"})
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	params, err := flags.resolve(log)
	require.NoError(t, err)

	assert.Equal(t, 0.5, params.SharpenStrength, "flag beats file")
	assert.Equal(t, 2.0, params.DenoiseStrength, "file beats default")
	assert.Equal(t, 2, params.Scale)
	assert.Equal(t, enhance.DefaultParams().Contrast, params.Contrast)
	assert.Equal(t, "in.jpg", flags.input, "flag beats file")
	assert.Equal(t, "/out/file", flags.output)
	assert.True(t, flags.batch)
}

func TestEnhanceFlags_ContrastAndBrightness(t *testing.T) {
	paramsFile := filepath.Join(t.TempDir(), "params.env")
	require.NoError(t, os.WriteFile(paramsFile, []byte("contrast=2.5\nbrightness=-40\n"), 0644))
	log, _ := test.NewNullLogger()

	flags, err := parseEnhanceFlags([]string{"-config", paramsFile, "-i", "a.png", "-o", "b.png", "-contrast", "1.5", "-brightness", "20"})
	require.NoError(t, err)
	params, err := flags.resolve(log)
	require.NoError(t, err)
	assert.Equal(t, 1.5, params.Contrast, "flag beats file")
	assert.Equal(t, 20.0, params.Brightness, "flag beats file")

	flags, err = parseEnhanceFlags([]string{"-config", paramsFile, "-i", "a.png", "-o", "b.png"})
	require.NoError(t, err)
	params, err = flags.resolve(log)
	require.NoError(t, err)
	assert.Equal(t, 2.5, params.Contrast)
	assert.Equal(t, -40.0, params.Brightness)

	flags, err = parseEnhanceFlags([]string{"-i", "a.png", "-o", "b.png", "-contrast", "0"})
	require.NoError(t, err)
	params, err = flags.resolve(log)
	require.NoError(t, err)
	assert.Equal(t, 0.0, params.Contrast, "explicit zero is honored")
	assert.Equal(t, enhance.DefaultParams().Brightness, params.Brightness)
}

func TestEnhanceFlags_ScaleIsClamped(t *testing.T) {
	flags, err := parseEnhanceFlags([]string{"-i", "a.png", "-o", "b.png", "-scale", "50"})
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	params, err := flags.resolve(log)
	require.NoError(t, err)
	assert.Equal(t, 8, params.Scale)
}

func TestEnhanceFlags_RequiresPaths(t *testing.T) {
	flags, err := parseEnhanceFlags([]string{"-i", "a.png"})
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	_, err = flags.resolve(log)
	assert.Error(t, err)
}

func TestEnhanceFlags_MissingConfigFile(t *testing.T) {
	flags, err := parseEnhanceFlags([]string{"-i", "a.png", "-o", "b.png", "-config", filepath.Join(t.TempDir(), "none")})
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	_, err = flags.resolve(log)
	assert.Error(t, err)
}
