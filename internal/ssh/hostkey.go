package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/bedrockd/internal/logging"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// NewHostKeyCallback verifies SFTP backup hosts against a known_hosts
// file. With trustOnFirstUse set, a host not yet in the file has its
// key recorded on first contact; a key that differs from the recorded
// one is always rejected. An empty path disables verification.
func NewHostKeyCallback(knownHostsPath string, trustOnFirstUse bool) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if err := ensureKnownHostsFile(knownHostsPath); err != nil {
		return nil, err
	}
	verify, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}

		if len(keyErr.Want) > 0 {
			// The host presented a different key than the one on record.
			logging.L().Warn("ssh_host_key_changed",
				"host", hostname,
				"fingerprint", ssh.FingerprintSHA256(key),
			)
			return fmt.Errorf("SSH host key changed for %s", hostname)
		}

		if !trustOnFirstUse {
			return fmt.Errorf("unknown SSH host key for %s", hostname)
		}
		if err := recordHostKey(knownHostsPath, hostname, remote, key); err != nil {
			return err
		}
		logging.L().Info("ssh_host_key_accepted",
			"host", hostname,
			"fingerprint", ssh.FingerprintSHA256(key),
		)
		return nil
	}, nil
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	return file.Close()
}

func recordHostKey(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	line := knownhosts.Line(knownHostsAddresses(hostname, remote), key)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write known_hosts entry: %w", err)
	}
	return nil
}

// knownHostsAddresses lists the hostname and the dialed address (when
// they differ) so later lookups match on either form.
func knownHostsAddresses(hostname string, remote net.Addr) []string {
	var remoteHost, remotePort string
	if remote != nil {
		var err error
		remoteHost, remotePort, err = net.SplitHostPort(remote.String())
		if err != nil {
			remoteHost, remotePort = remote.String(), ""
		}
	}

	var addrs []string
	if hostname != "" {
		addrs = append(addrs, knownHostsAddr(hostname, remotePort))
	}
	if remoteHost != "" && remoteHost != hostname {
		addrs = append(addrs, knownHostsAddr(remoteHost, remotePort))
	}
	if len(addrs) == 0 {
		addrs = append(addrs, knownHostsAddr(remoteHost, remotePort))
	}
	return addrs
}

// knownHostsAddr renders a host in known_hosts notation; non-standard
// ports use the bracketed form.
func knownHostsAddr(host, port string) string {
	if host == "" || port == "" || port == "22" {
		return host
	}
	return fmt.Sprintf("[%s]:%s", host, port)
}
