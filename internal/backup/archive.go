package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArchiveInfo contains metadata about a created archive
type ArchiveInfo struct {
	Filename  string
	Path      string
	SizeBytes int64
	FileCount int
	CreatedAt time.Time
}

// SafeName reduces an installation name to filename-safe characters.
// Anything outside alphanumerics, dash and underscore becomes an
// underscore, so archive names stay parseable.
func SafeName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ArchiveFilename builds the canonical backup name for an installation:
// <safe-name>_YYYYMMDD_HHMMSS.zip
func ArchiveFilename(installation string, at time.Time) string {
	return fmt.Sprintf("%s_%s.zip", SafeName(installation), at.Format("20060102_150405"))
}

// ParseArchiveFilename recovers the installation name and timestamp from
// a backup filename. The timestamp comes back empty when the name does
// not follow the canonical format.
func ParseArchiveFilename(filename string) (installation, timestamp string) {
	stem := strings.TrimSuffix(filepath.Base(filename), ".zip")
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return stem, ""
	}
	timePart := stem[idx+1:]
	rest := stem[:idx]
	idx = strings.LastIndex(rest, "_")
	if idx < 0 || len(timePart) != 6 {
		return stem, ""
	}
	datePart := rest[idx+1:]
	if len(datePart) != 8 {
		return stem, ""
	}
	installation = rest[:idx]
	timestamp = fmt.Sprintf("%s-%s-%s %s:%s:%s",
		datePart[:4], datePart[4:6], datePart[6:8],
		timePart[:2], timePart[2:4], timePart[4:6])
	return installation, timestamp
}

// CreateArchive zips the entire installation directory into backupDir and
// returns the archive metadata. Paths inside the zip are relative to the
// installation root.
func CreateArchive(installationPath, installation, backupDir string) (*ArchiveInfo, error) {
	installationPath, err := filepath.Abs(installationPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve installation path: %w", err)
	}
	if info, err := os.Stat(installationPath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("installation directory does not exist: %s", installationPath)
	}

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := time.Now()
	filename := ArchiveFilename(installation, now)
	archivePath := filepath.Join(backupDir, filename)

	log.Printf("[Archive] Creating %s from %s", filename, installationPath)

	out, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	fileCount := 0

	walkErr := filepath.Walk(installationPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(installationPath, path)
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		if _, err := io.Copy(w, src); err != nil {
			return err
		}
		fileCount++
		return nil
	})

	if walkErr == nil {
		walkErr = zw.Close()
	} else {
		zw.Close()
	}
	if closeErr := out.Close(); walkErr == nil {
		walkErr = closeErr
	}
	if walkErr != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to archive installation: %w", walkErr)
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	info := &ArchiveInfo{
		Filename:  filename,
		Path:      archivePath,
		SizeBytes: stat.Size(),
		FileCount: fileCount,
		CreatedAt: now,
	}

	log.Printf("[Archive] Created %s (size: %d bytes, files: %d)", filename, info.SizeBytes, fileCount)
	return info, nil
}

// RestoreArchive extracts a backup zip into a fresh directory under
// instancesDir and returns the restored path. When the target name is
// already taken a timestamp suffix is appended. Archives whose entries
// all live under a single top-level directory are flattened, matching
// older backup layouts. The server binary gets its execute bit back.
func RestoreArchive(archivePath, instancesDir, name string) (string, error) {
	archivePath, err := filepath.Abs(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve archive path: %w", err)
	}
	if _, err := os.Stat(archivePath); err != nil {
		return "", fmt.Errorf("backup not found: %s", archivePath)
	}

	if name == "" {
		name, _ = ParseArchiveFilename(archivePath)
	}

	targetDir := filepath.Join(instancesDir, name)
	if _, err := os.Stat(targetDir); err == nil {
		name = fmt.Sprintf("%s_restored_%s", name, time.Now().Format("20060102_150405"))
		targetDir = filepath.Join(instancesDir, name)
	}

	tempDir := filepath.Join(instancesDir, ".tmp_restore_"+name)
	if err := os.RemoveAll(tempDir); err != nil {
		return "", fmt.Errorf("failed to clear temp directory: %w", err)
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := extractZip(archivePath, tempDir); err != nil {
		return "", err
	}

	// Older archives wrapped everything in a single top-level directory
	source := tempDir
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return "", fmt.Errorf("failed to inspect extracted files: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		source = filepath.Join(tempDir, entries[0].Name())
	}

	if err := os.MkdirAll(instancesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create instances directory: %w", err)
	}
	if err := os.Rename(source, targetDir); err != nil {
		return "", fmt.Errorf("failed to move restored files into place: %w", err)
	}

	binary := filepath.Join(targetDir, "bedrock_server")
	if _, err := os.Stat(binary); err == nil {
		if err := os.Chmod(binary, 0755); err != nil {
			log.Printf("[Archive] Failed to set execute bit on server binary: %v", err)
		}
	}

	log.Printf("[Archive] Restored %s to %s", filepath.Base(archivePath), targetDir)
	return targetDir, nil
}

// extractZip unpacks the archive into dest, refusing entries that would
// escape the destination directory.
func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		cleaned := filepath.Clean(f.Name)
		if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
			return fmt.Errorf("archive contains unsafe path: %s", f.Name)
		}
		target := filepath.Join(dest, cleaned)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			src.Close()
			return err
		}
		_, copyErr := io.Copy(out, src)
		src.Close()
		if closeErr := out.Close(); copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, copyErr)
		}
	}
	return nil
}
