// Package release finds or installs the activitywatch-ls binary the way the
// editor extension does: from PATH, from a previous download, or from the
// latest GitHub release.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

const (
	// DefaultRepo publishes the release archives.
	DefaultRepo = "sachk/aw-watcher-zed"

	// BinaryName is the language server executable name.
	BinaryName = "activitywatch-ls"

	defaultAPIBase = "https://api.github.com"
)

var (
	// ErrNoAsset is returned when the release has no archive for this platform.
	ErrNoAsset = errors.New("no release asset for this platform")

	// ErrUnsupportedPlatform is returned by TargetTriple for unknown OS/arch pairs.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// TargetTriple names the release build for a platform, e.g.
// activitywatch-ls-x86_64-unknown-linux-gnu.
func TargetTriple(goos, goarch string) (string, error) {
	var arch, osPart string
	switch goarch {
	case "arm64":
		arch = "aarch64"
	case "amd64":
		arch = "x86_64"
	default:
		return "", fmt.Errorf("%w: architecture %s", ErrUnsupportedPlatform, goarch)
	}
	switch goos {
	case "darwin":
		osPart = "apple-darwin"
	case "linux":
		osPart = "unknown-linux-gnu"
	case "windows":
		osPart = "pc-windows-msvc"
	default:
		return "", fmt.Errorf("%w: os %s", ErrUnsupportedPlatform, goos)
	}
	return fmt.Sprintf("%s-%s-%s", BinaryName, arch, osPart), nil
}

// ExecutableName appends .exe on Windows.
func ExecutableName(name, goos string) string {
	if goos == "windows" && !strings.HasSuffix(name, ".exe") {
		return name + ".exe"
	}
	return name
}

// Release is the subset of the GitHub release payload we use.
type Release struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is one downloadable release file.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
}

// Version is the tag without a leading "v".
func (r *Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}

// Asset returns the asset called name.
func (r *Release) Asset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// Installer downloads release archives into Dir.
type Installer struct {
	Dir        string // where version directories are created
	Repo       string // owner/name; empty means DefaultRepo
	APIBase    string // empty means https://api.github.com
	HTTPClient *http.Client
	GOOS       string
	GOARCH     string
	Logger     *zap.Logger
}

func (i *Installer) repo() string {
	if i.Repo != "" {
		return i.Repo
	}
	return DefaultRepo
}

func (i *Installer) apiBase() string {
	if i.APIBase != "" {
		return strings.TrimRight(i.APIBase, "/")
	}
	return defaultAPIBase
}

func (i *Installer) client() *http.Client {
	if i.HTTPClient != nil {
		return i.HTTPClient
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

func (i *Installer) logger() *zap.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return zap.NewNop()
}

// Latest fetches the newest published, non-prerelease release.
func (i *Installer) Latest(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", i.apiBase(), i.repo())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", BinaryName)

	resp, err := i.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching latest release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching latest release: %s", resp.Status)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	if rel.Draft || rel.Prerelease {
		return nil, fmt.Errorf("latest release %s is a draft or prerelease", rel.TagName)
	}
	if len(rel.Assets) == 0 {
		return nil, fmt.Errorf("release %s has no assets", rel.TagName)
	}
	return &rel, nil
}

// Install makes sure the latest release binary is present under Dir and
// returns its path. Older activitywatch-ls* entries in Dir are removed.
func (i *Installer) Install(ctx context.Context) (string, error) {
	triple, err := TargetTriple(i.GOOS, i.GOARCH)
	if err != nil {
		return "", err
	}
	rel, err := i.Latest(ctx)
	if err != nil {
		return "", err
	}
	assetName := triple + ".zip"
	asset, ok := rel.Asset(assetName)
	if !ok {
		return "", fmt.Errorf("%w: %s not in release %s", ErrNoAsset, assetName, rel.TagName)
	}

	versionDir := BinaryName + "-" + rel.Version()
	target := filepath.Join(i.Dir, versionDir)
	binary := filepath.Join(target, ExecutableName(BinaryName, i.GOOS))

	if !isFile(binary) {
		i.logger().Info("downloading language server",
			zap.String("version", rel.Version()),
			zap.String("asset", asset.Name))
		if err := i.download(ctx, asset, target); err != nil {
			return "", err
		}
		if err := os.Chmod(binary, 0o755); err != nil {
			return "", fmt.Errorf("marking %s executable: %w", binary, err)
		}
	}

	if err := i.removeOthers(versionDir); err != nil {
		i.logger().Warn("failed to remove old versions", zap.Error(err))
	}
	return binary, nil
}

func (i *Installer) download(ctx context.Context, asset Asset, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", BinaryName)
	resp, err := i.client().Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: %s", asset.Name, resp.Status)
	}

	if err := os.MkdirAll(i.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(i.Dir, ".download-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", asset.Name, err)
	}
	return Unzip(tmp, size, target)
}

// removeOthers deletes every activitywatch-ls* entry in Dir except keep.
func (i *Installer) removeOthers(keep string) error {
	entries, err := os.ReadDir(i.Dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if name == keep || !strings.HasPrefix(name, BinaryName) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(i.Dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unzip extracts the archive into dir. Entries that would land outside dir
// are rejected.
func Unzip(r io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	for _, f := range zr.File {
		dest := filepath.Join(root, filepath.FromSlash(f.Name))
		if dest != root && !strings.HasPrefix(dest, root+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes %s", f.Name, dir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return out.Close()
}

// Locate resolves an existing binary without touching the network: the
// plain name on PATH, then the platform-triple name on PATH, then cached if
// it still points at a file.
func Locate(lookPath func(string) (string, error), cached, goos, goarch string) (string, bool) {
	names := []string{BinaryName}
	if triple, err := TargetTriple(goos, goarch); err == nil {
		names = append(names, triple)
	}
	for _, n := range names {
		if p, err := lookPath(ExecutableName(n, goos)); err == nil {
			return p, true
		}
	}
	if cached != "" && isFile(cached) {
		return cached, true
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
