package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/scality/netlogon-courier/pkg/directory"
	"github.com/scality/netlogon-courier/pkg/share"
)

// FakeDirectory serves a fixed forest. Domains are returned in insertion order.
type FakeDirectory struct {
	DomainList []directory.Domain
	Hosts      map[string][]string
	// Err fails every call when set
	Err error
}

// NewFakeDirectory creates a single-domain directory listing hosts
func NewFakeDirectory(domain string, hosts ...string) *FakeDirectory {
	return &FakeDirectory{
		DomainList: []directory.Domain{{Name: domain, NamingContext: "DC=" + strings.ReplaceAll(domain, ".", ",DC=")}},
		Hosts:      map[string][]string{domain: hosts},
	}
}

// Domains returns the configured domains
func (d *FakeDirectory) Domains(ctx context.Context) ([]directory.Domain, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.DomainList, nil
}

// DomainControllers returns the hosts configured for domain
func (d *FakeDirectory) DomainControllers(ctx context.Context, domain directory.Domain) ([]string, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Hosts[domain.Name], nil
}

// FakeLog is the log file served for one host
type FakeLog struct {
	Content string
	ModTime time.Time
	// OpenErrs are returned by successive opens before the file is served
	OpenErrs []error
	// Delay blocks opens until it elapses or the context is done
	Delay time.Duration
}

// FakeOpener serves in-memory log files keyed by host
type FakeOpener struct {
	mu     sync.Mutex
	logs   map[string]*FakeLog
	opens  map[string]int
	closed int
}

var _ share.Opener = (*FakeOpener)(nil)

// NewFakeOpener creates an opener with no files
func NewFakeOpener() *FakeOpener {
	return &FakeOpener{
		logs:  make(map[string]*FakeLog),
		opens: make(map[string]int),
	}
}

// SetLog serves log for host
func (o *FakeOpener) SetLog(host string, log FakeLog) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logs[host] = &log
}

// Open returns host's log, or fs.ErrNotExist for unknown hosts
func (o *FakeOpener) Open(ctx context.Context, host, path string) (share.File, error) {
	o.mu.Lock()
	o.opens[host]++
	log, ok := o.logs[host]
	var openErr error
	if ok && len(log.OpenErrs) > 0 {
		openErr = log.OpenErrs[0]
		log.OpenErrs = log.OpenErrs[1:]
	}
	o.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("open %s on %s: %w", path, host, fs.ErrNotExist)
	}

	if log.Delay > 0 {
		select {
		case <-time.After(log.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if openErr != nil {
		return nil, openErr
	}

	return &memFile{
		Reader:  bytes.NewReader([]byte(log.Content)),
		name:    path,
		size:    int64(len(log.Content)),
		modTime: log.ModTime,
		onClose: o.markClosed,
	}, nil
}

// Opens returns the number of open attempts for host
func (o *FakeOpener) Opens(host string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[host]
}

// Closed returns the number of files closed
func (o *FakeOpener) Closed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *FakeOpener) markClosed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
}

type memFile struct {
	*bytes.Reader
	name    string
	size    int64
	modTime time.Time
	onClose func()
}

func (f *memFile) Stat() (fs.FileInfo, error) {
	return memFileInfo{name: f.name, size: f.size, modTime: f.modTime}, nil
}

func (f *memFile) Close() error {
	f.onClose()
	return nil
}

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (i memFileInfo) Name() string       { return i.name }
func (i memFileInfo) Size() int64        { return i.size }
func (i memFileInfo) Mode() fs.FileMode  { return 0o444 }
func (i memFileInfo) ModTime() time.Time { return i.modTime }
func (i memFileInfo) IsDir() bool        { return false }
func (i memFileInfo) Sys() any           { return nil }
