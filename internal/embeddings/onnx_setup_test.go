//go:build cgo

package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformArchive(t *testing.T) {
	tests := []struct {
		goos   string
		goarch string
		want   string
	}{
		{"linux", "amd64", "linux-x64"},
		{"linux", "arm64", "linux-aarch64"},
		{"darwin", "amd64", "osx-x86_64"},
		{"darwin", "arm64", "osx-arm64"},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := platformArchive(tt.goos, tt.goarch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlatformArchive_Unsupported(t *testing.T) {
	_, err := platformArchive("windows", "amd64")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported platform")
}

func TestLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", libraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", libraryName("darwin"))
	assert.Equal(t, "libonnxruntime.so", libraryName("plan9"))
}

func TestCurrentPlatformSupported(t *testing.T) {
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		_, err := platformArchive(runtime.GOOS, runtime.GOARCH)
		assert.NoError(t, err)
	}
}

func TestExtractTarGz(t *testing.T) {
	platform, err := platformArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		t.Skip("unsupported platform")
	}
	libName := libraryName(runtime.GOOS)
	version := DefaultONNXRuntimeVersion

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	prefix := "onnxruntime-" + platform + "-" + version
	entries := []struct {
		name string
		body string
	}{
		{prefix + "/README.md", "not a library"},
		{prefix + "/lib/" + libName + "." + version, "fake shared object"},
		{prefix + "/lib/" + libName, "fake shared object"},
	}
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: e.name,
			Mode: 0644,
			Size: int64(len(e.body)),
		}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())

	destDir := t.TempDir()
	require.NoError(t, extractTarGz(&buf, destDir, version, platform))

	// Only lib/ contents are extracted.
	assert.FileExists(t, filepath.Join(destDir, libName))
	assert.FileExists(t, filepath.Join(destDir, libName+"."+version))
	_, err = os.Stat(filepath.Join(destDir, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractTarGz_MissingLibrary(t *testing.T) {
	platform, err := platformArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		t.Skip("unsupported platform")
	}
	version := DefaultONNXRuntimeVersion

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	body := "unrelated"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "onnxruntime-" + platform + "-" + version + "/lib/VERSION",
		Mode: 0644,
		Size: int64(len(body)),
	}))
	_, err = tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())

	err = extractTarGz(&buf, t.TempDir(), version, platform)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")
}
