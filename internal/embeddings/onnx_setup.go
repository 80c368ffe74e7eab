//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultONNXRuntimeVersion is the ONNX runtime version matching the
// fastembed bindings. Update when bumping the dependency in go.mod.
const DefaultONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform indicates the current OS/arch has no ONNX
// runtime release.
var ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

// platformArchMap maps GOOS/GOARCH to ONNX release archive names.
var platformArchMap = map[string]map[string]string{
	"linux": {
		"amd64": "linux-x64",
		"arm64": "linux-aarch64",
	},
	"darwin": {
		"amd64": "osx-x86_64",
		"arm64": "osx-arm64",
	},
}

// libraryNames maps GOOS to the shared library filename.
var libraryNames = map[string]string{
	"linux":  "libonnxruntime.so",
	"darwin": "libonnxruntime.dylib",
}

func platformArchive(goos, goarch string) (string, error) {
	archMap, ok := platformArchMap[goos]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	arch, ok := archMap[goarch]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return arch, nil
}

func libraryName(goos string) string {
	if name, ok := libraryNames[goos]; ok {
		return name
	}
	return "libonnxruntime.so"
}

// onnxInstallDir is the managed install location for the runtime library.
func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "pipevet", "lib")
}

// GetONNXLibraryPath returns the path to the ONNX runtime library.
// The ONNX_PATH environment variable takes precedence over the managed
// install at ~/.config/pipevet/lib. Returns empty when neither exists.
func GetONNXLibraryPath() string {
	if envPath := os.Getenv("ONNX_PATH"); envPath != "" {
		return envPath
	}

	managedPath := filepath.Join(onnxInstallDir(), libraryName(runtime.GOOS))
	if _, err := os.Stat(managedPath); err == nil {
		return managedPath
	}

	return ""
}

// ONNXRuntimeExists reports whether an ONNX runtime library is available.
func ONNXRuntimeExists() bool {
	return GetONNXLibraryPath() != ""
}

const onnxReleaseURLTemplate = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

// DownloadONNXRuntime downloads the ONNX runtime for the current
// platform into the managed install directory. An empty version selects
// DefaultONNXRuntimeVersion.
func DownloadONNXRuntime(ctx context.Context, version string) error {
	if version == "" {
		version = DefaultONNXRuntimeVersion
	}
	return downloadONNXRuntimeTo(ctx, version, onnxInstallDir())
}

func downloadONNXRuntimeTo(ctx context.Context, version, destDir string) error {
	platform, err := platformArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}

	url := fmt.Sprintf(onnxReleaseURLTemplate, version, platform, version)

	if err := os.MkdirAll(destDir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if err := extractTarGz(resp.Body, destDir, version, platform); err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}

	return nil
}

// extractTarGz extracts the lib/ directory of the ONNX runtime tarball.
// The archive carries the shared library plus version-suffixed symlinks.
func extractTarGz(r io.Reader, destDir, version, platform string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	expectedPrefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version)
	libName := libraryName(runtime.GOOS)

	var foundMainLib bool

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, expectedPrefix) {
			continue
		}
		if header.Typeflag == tar.TypeDir {
			continue
		}

		filename := filepath.Base(name)
		destPath := filepath.Join(destDir, filename)

		if header.Typeflag == tar.TypeSymlink {
			os.Remove(destPath)
			if err := os.Symlink(header.Linkname, destPath); err != nil {
				// The target file is extracted separately; a failed
				// symlink is not fatal.
				continue
			}
			if filename == libName {
				foundMainLib = true
			}
			continue
		}

		outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", filename, err)
		}
		if _, err := io.Copy(outFile, tr); err != nil {
			outFile.Close()
			return fmt.Errorf("writing file %s: %w", filename, err)
		}
		outFile.Close()

		if filename == libName || strings.HasPrefix(filename, libName+".") {
			foundMainLib = true
		}
	}

	if !foundMainLib {
		return fmt.Errorf("library %s not found in archive", libName)
	}

	return nil
}
