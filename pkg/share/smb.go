package share

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"time"

	"github.com/hirochachacha/go-smb2"
)

const (
	defaultSMBPort     = 445
	defaultDialTimeout = 10 * time.Second
)

// SMBConfig holds the credentials and share used to reach domain controllers
type SMBConfig struct {
	Username string
	Password string
	Domain   string
	// Share is the share name mounted on every host, ADMIN$ by default
	Share       string
	Port        int
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// SMBOpener opens files over SMB2/3 with an NTLM session per file
type SMBOpener struct {
	dialer      *smb2.Dialer
	share       string
	port        int
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewSMBOpener creates an opener authenticating with cfg's credentials
func NewSMBOpener(cfg SMBConfig) (*SMBOpener, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("smb username is required")
	}
	if cfg.Share == "" {
		cfg.Share = "ADMIN$"
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSMBPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &SMBOpener{
		dialer: &smb2.Dialer{
			Initiator: &smb2.NTLMInitiator{
				User:     cfg.Username,
				Password: cfg.Password,
				Domain:   cfg.Domain,
			},
		},
		share:       cfg.Share,
		port:        cfg.Port,
		dialTimeout: cfg.DialTimeout,
		logger:      cfg.Logger,
	}, nil
}

// Open dials host, mounts the configured share and opens path on it.
// Closing the returned file unmounts the share and logs the session off.
func (o *SMBOpener) Open(ctx context.Context, host, path string) (File, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", o.port))

	dialer := &net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smb dial %s: %w", addr, err)
	}

	session, err := o.dialer.DialContext(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smb session %s: %w", host, err)
	}

	shareName := fmt.Sprintf(`\\%s\%s`, host, o.share)
	mounted, err := session.WithContext(ctx).Mount(shareName)
	if err != nil {
		_ = session.Logoff()
		return nil, fmt.Errorf("smb mount %s: %w", shareName, err)
	}

	name := normalizePath(path)
	f, err := mounted.WithContext(ctx).Open(name)
	if err != nil {
		_ = mounted.Umount()
		_ = session.Logoff()
		return nil, fmt.Errorf("smb open %s\\%s: %w", shareName, name, err)
	}

	o.logger.Debug("opened remote file", "host", host, "share", o.share, "path", name)

	return &smbFile{
		file:    f,
		share:   mounted,
		session: session,
		logger:  o.logger.With("host", host),
	}, nil
}

type smbFile struct {
	file    *smb2.File
	share   *smb2.Share
	session *smb2.Session
	logger  *slog.Logger
}

func (f *smbFile) ReadAt(p []byte, off int64) (int, error) {
	return f.file.ReadAt(p, off)
}

func (f *smbFile) Stat() (fs.FileInfo, error) {
	return f.file.Stat()
}

func (f *smbFile) Close() error {
	err := f.file.Close()
	if umountErr := f.share.Umount(); umountErr != nil {
		f.logger.Debug("smb unmount failed", "error", umountErr)
	}
	if logoffErr := f.session.Logoff(); logoffErr != nil {
		f.logger.Debug("smb logoff failed", "error", logoffErr)
	}
	return err
}
