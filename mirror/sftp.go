package mirror

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"renderfarm/logger"
)

// sftpBackend uploads a frame's bytes to a remote path over SFTP.
type sftpBackend struct{}

func (b *sftpBackend) Write(ctx context.Context, creds map[string]string, remotePath string, r io.Reader) error {
	host := creds["host"]
	user := creds["user"]
	if host == "" || user == "" {
		return fmt.Errorf("mirror/sftp: missing host or user in credentials")
	}
	port := creds["port"]
	if port == "" {
		port = "22"
	}

	var auths []ssh.AuthMethod
	if key := creds["privateKey"]; key != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			keyBytes = []byte(key)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return fmt.Errorf("mirror/sftp: parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if pass := creds["password"]; pass != "" {
		auths = append(auths, ssh.Password(pass))
	} else {
		return fmt.Errorf("mirror/sftp: no auth method in credentials")
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(host, port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mirror/sftp: dial %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return fmt.Errorf("mirror/sftp: handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("mirror/sftp: new client: %w", err)
	}
	defer sftpClient.Close()

	if err := mkdirAll(sftpClient, path.Dir(remotePath)); err != nil {
		return fmt.Errorf("mirror/sftp: ensure remote dir: %w", err)
	}

	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("mirror/sftp: create %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("mirror/sftp: copy to %s: %w", remotePath, err)
	}

	logger.Debugf("mirror/sftp: uploaded %s to %s", remotePath, addr)
	return nil
}

// mkdirAll mimics os.MkdirAll for an SFTP server by creating each path
// segment in turn.
func mkdirAll(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if os.IsNotExist(err) {
				if err := client.Mkdir(cur); err != nil {
					return fmt.Errorf("mkdir %s: %w", cur, err)
				}
			} else {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
		}
	}
	return nil
}
