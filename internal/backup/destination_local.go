package backup

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// LocalDestination mirrors archives into a directory on this machine,
// typically a mounted external drive or NFS share.
type LocalDestination struct {
	basePath string
}

func NewLocalDestination(basePath string) *LocalDestination {
	return &LocalDestination{basePath: basePath}
}

func (ld *LocalDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	if err := os.MkdirAll(ld.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	target := filepath.Join(ld.basePath, filename)
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		os.Remove(target)
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if written != sizeBytes {
		os.Remove(target)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}

	log.Printf("[LocalDest] Stored %s (%d bytes)", filename, written)
	return nil
}

func (ld *LocalDestination) Download(filename string, writer io.Writer) error {
	file, err := os.Open(filepath.Join(ld.basePath, filename))
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}
	return nil
}

func (ld *LocalDestination) Delete(filename string) error {
	if err := os.Remove(filepath.Join(ld.basePath, filename)); err != nil {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
	log.Printf("[LocalDest] Deleted %s", filename)
	return nil
}

// List returns the zip archives in the destination directory.
func (ld *LocalDestination) List() ([]BackupFile, error) {
	if err := os.MkdirAll(ld.basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to access backup directory: %w", err)
	}
	entries, err := os.ReadDir(ld.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".zip" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().Unix(),
		})
	}
	return files, nil
}

func (ld *LocalDestination) GetType() string {
	return "local"
}

// Exists reports whether an archive is present at the destination.
func (ld *LocalDestination) Exists(filename string) bool {
	_, err := os.Stat(filepath.Join(ld.basePath, filename))
	return err == nil
}
