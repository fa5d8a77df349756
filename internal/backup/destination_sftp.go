package backup

import (
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/pkg/sftp"
	sshclient "github.com/yourusername/bedrockd/internal/ssh"
	xssh "golang.org/x/crypto/ssh"
)

// SFTPDestination mirrors archives to a remote host over SFTP. The
// connection is established once at construction and reused for every
// transfer; a manager resolves a fresh destination per operation, so a
// dropped connection heals on the next backup.
type SFTPDestination struct {
	config     *DestinationConfig
	sshClient  *xssh.Client
	sftpClient *sftp.Client
}

func NewSFTPDestination(config *DestinationConfig) (*SFTPDestination, error) {
	sd := &SFTPDestination{config: config}
	if err := sd.connect(); err != nil {
		return nil, err
	}
	return sd, nil
}

func (sd *SFTPDestination) connect() error {
	auth, err := sd.authMethod()
	if err != nil {
		return err
	}

	knownHosts := sd.config.KnownHostsPath
	if knownHosts == "" {
		knownHosts = "./data/known_hosts"
	}
	hostKeyCallback, err := sshclient.NewHostKeyCallback(knownHosts, sd.config.TrustOnFirstUse)
	if err != nil {
		return fmt.Errorf("failed to configure host key verification: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", sd.config.SFTPHost, sd.config.SFTPPort)
	sshClient, err := xssh.Dial("tcp", addr, &xssh.ClientConfig{
		User:            sd.config.SFTPUsername,
		Auth:            []xssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	sd.sshClient = sshClient

	// Large packets and concurrent writes make bulk archive uploads
	// tolerable on high-latency links.
	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	sd.sftpClient = sftpClient

	if err := sd.sftpClient.MkdirAll(sd.config.Path); err != nil {
		sd.Close()
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	log.Printf("[SFTPDest] Connected to %s", addr)
	return nil
}

// authMethod prefers key auth; the key file may be ENC1-encrypted.
func (sd *SFTPDestination) authMethod() (xssh.AuthMethod, error) {
	if sd.config.SFTPKeyPath != "" {
		keyData, err := sshclient.ReadPrivateKeyBytes(sd.config.SFTPKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := xssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		return xssh.PublicKeys(signer), nil
	}
	if sd.config.SFTPPassword != "" {
		return xssh.Password(sd.config.SFTPPassword), nil
	}
	return nil, errors.New("no authentication method provided for SFTP")
}

// Close tears down the SFTP session and the SSH transport under it.
func (sd *SFTPDestination) Close() error {
	if sd.sftpClient != nil {
		sd.sftpClient.Close()
	}
	if sd.sshClient != nil {
		sd.sshClient.Close()
	}
	return nil
}

func (sd *SFTPDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	remote := path.Join(sd.config.Path, filename)
	log.Printf("[SFTPDest] Uploading %s (%d bytes)", remote, sizeBytes)

	file, err := sd.sftpClient.Create(remote)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		sd.sftpClient.Remove(remote)
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	if written != sizeBytes {
		sd.sftpClient.Remove(remote)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}
	return nil
}

func (sd *SFTPDestination) Download(filename string, writer io.Writer) error {
	file, err := sd.sftpClient.Open(path.Join(sd.config.Path, filename))
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read remote file: %w", err)
	}
	return nil
}

func (sd *SFTPDestination) Delete(filename string) error {
	if err := sd.sftpClient.Remove(path.Join(sd.config.Path, filename)); err != nil {
		return fmt.Errorf("failed to delete remote file: %w", err)
	}
	return nil
}

func (sd *SFTPDestination) List() ([]BackupFile, error) {
	entries, err := sd.sftpClient.ReadDir(sd.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}
	return files, nil
}

func (sd *SFTPDestination) GetType() string {
	return "sftp"
}
