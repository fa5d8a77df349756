package releases

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// The Minecraft wiki keeps the current Release and Preview version numbers
// of the Bedrock Dedicated Server on its BDS page. There is no official
// version API, so we scrape the two numbers out of the page HTML the same
// way the community install scripts do.
const (
	wikiURL   = "https://minecraft.wiki/w/Bedrock_Dedicated_Server"
	userAgent = "Mozilla/5.0 (compatible; bedrockd/1.0)"

	PatchlineRelease = "release"
	PatchlinePreview = "preview"
)

var (
	releaseVersionRe = regexp.MustCompile(`<b>Release:</b>.*?>(\d+\.\d+\.\d+\.\d+)`)
	previewVersionRe = regexp.MustCompile(`<b>Preview:</b>.*?>(\d+\.\d+\.\d+\.\d+)`)
	versionFormatRe  = regexp.MustCompile(`^1\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// VersionInfo is a downloadable Bedrock server version.
type VersionInfo struct {
	Version   string `json:"version"`
	Patchline string `json:"patchline"`
}

// DownloadURL builds the minecraft.net archive URL for this version.
func (v VersionInfo) DownloadURL() string {
	suffix := ""
	if v.Patchline == PatchlinePreview {
		suffix = "-preview"
	}
	return fmt.Sprintf("https://www.minecraft.net/bedrockdedicatedserver/bin-linux%s/bedrock-server-%s.zip", suffix, v.Version)
}

// DisplayName renders the version for listings, e.g. "Release: 1.21.44.01".
func (v VersionInfo) DisplayName() string {
	prefix := "Release"
	if v.Patchline == PatchlinePreview {
		prefix = "Preview"
	}
	return fmt.Sprintf("%s: %s", prefix, v.Version)
}

// ParseWikiVersions extracts the current Release and Preview versions from
// the wiki page HTML. Missing entries are simply omitted.
func ParseWikiVersions(html string) []VersionInfo {
	versions := []VersionInfo{}
	if m := releaseVersionRe.FindStringSubmatch(html); m != nil {
		versions = append(versions, VersionInfo{Version: m[1], Patchline: PatchlineRelease})
	}
	if m := previewVersionRe.FindStringSubmatch(html); m != nil {
		versions = append(versions, VersionInfo{Version: m[1], Patchline: PatchlinePreview})
	}
	return versions
}

// FetchVersions retrieves the wiki page and parses the available versions.
func FetchVersions(ctx context.Context, client *http.Client) ([]VersionInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wikiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch version page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("version page returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	return ParseWikiVersions(string(body)), nil
}

// ResolveVersion finds the download URL for an explicit version number by
// probing the release patchline first, then preview.
func ResolveVersion(ctx context.Context, client *http.Client, version string) (VersionInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}
	for _, patchline := range []string{PatchlineRelease, PatchlinePreview} {
		info := VersionInfo{Version: version, Patchline: patchline}
		ok, err := urlExists(ctx, client, info.DownloadURL())
		if err != nil {
			return VersionInfo{}, err
		}
		if ok {
			return info, nil
		}
	}
	return VersionInfo{}, fmt.Errorf("version %s not found on any patchline", version)
}

func urlExists(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// ValidateVersionFormat reports whether a version string looks like a
// Bedrock version number (e.g. 1.21.44.01).
func ValidateVersionFormat(version string) bool {
	return versionFormatRe.MatchString(version)
}

// ValidateInstallationName rejects names that would be unsafe as a
// directory name under the instances root.
func ValidateInstallationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("installation name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("installation name is too long (max 64 characters)")
	}
	if strings.ContainsAny(name, "/\\:*?\"<>|\n\r\t") {
		return fmt.Errorf("installation name contains invalid characters")
	}
	switch strings.ToUpper(name) {
	case ".", "..", "CON", "PRN", "AUX", "NUL":
		return fmt.Errorf("%q is a reserved name", name)
	}
	return nil
}
