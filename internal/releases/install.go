package releases

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Files that hold operator configuration and world data. An upgrade must
// never clobber these; everything else in a release archive is fair game.
var preservedPaths = map[string]bool{
	"server.properties": true,
	"allowlist.json":    true,
	"permissions.json":  true,
}

const preservedDir = "worlds"

func isPreserved(relPath string) bool {
	if preservedPaths[relPath] {
		return true
	}
	return relPath == preservedDir || strings.HasPrefix(relPath, preservedDir+"/")
}

// extractServerArchive unpacks a release zip into destDir. When upgrade is
// true, entries under the preserved set are skipped if they already exist
// on disk so that an existing server keeps its settings and worlds.
func extractServerArchive(archivePath, destDir string, upgrade bool) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	cleanDest := filepath.Clean(destDir)
	for _, file := range reader.File {
		rel := filepath.ToSlash(filepath.Clean(file.Name))
		if rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		target := filepath.Join(cleanDest, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) && target != cleanDest {
			return fmt.Errorf("archive entry escapes destination: %s", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if upgrade && isPreserved(rel) {
			if _, err := os.Stat(target); err == nil {
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(file, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
	}

	// The server binary loses its execute bit in transit on some archives.
	binPath := filepath.Join(cleanDest, "bedrock_server")
	if _, err := os.Stat(binPath); err == nil {
		if err := os.Chmod(binPath, 0755); err != nil {
			return fmt.Errorf("failed to make server binary executable: %w", err)
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode().Perm()|0600)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
