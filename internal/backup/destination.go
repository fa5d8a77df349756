package backup

import (
	"fmt"
	"io"
)

// Destination is a place backup archives can be mirrored to. The local
// backup directory is always the primary copy; destinations hold
// replicas.
type Destination interface {
	Upload(filename string, reader io.Reader, sizeBytes int64) error
	Download(filename string, writer io.Writer) error
	Delete(filename string) error
	List() ([]BackupFile, error)
	GetType() string
}

// BackupFile describes one archive as seen by a destination.
type BackupFile struct {
	Filename  string
	SizeBytes int64
	CreatedAt int64 // Unix timestamp
}

// DestinationConfig is the resolved configuration for one destination,
// flattened across the local/sftp/s3 variants.
type DestinationConfig struct {
	Type string // "local", "sftp" or "s3"
	Path string

	SFTPHost        string
	SFTPPort        int
	SFTPUsername    string
	SFTPPassword    string
	SFTPKeyPath     string
	KnownHostsPath  string
	TrustOnFirstUse bool

	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // for S3-compatible storage
}

// NewDestination instantiates the destination named by config.Type.
func NewDestination(config *DestinationConfig) (Destination, error) {
	switch config.Type {
	case "local":
		return NewLocalDestination(config.Path), nil
	case "sftp":
		return NewSFTPDestination(config)
	case "s3":
		return NewS3Destination(config)
	}
	return nil, fmt.Errorf("unsupported destination type: %s", config.Type)
}
