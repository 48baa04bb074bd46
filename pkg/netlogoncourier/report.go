package netlogoncourier

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/scality/netlogon-courier/pkg/netlogon"
)

const (
	reportFilePrefix = "NoClientSiteSubnets-"
	reportDateLayout = "01022006"
	rowDateLayout    = "01/02/2006 15:04:05"
)

// ReportHeader is the CSV header row
//
//nolint:gochecknoglobals // fixed column order
var ReportHeader = []string{"Date", "Client", "User", "Domain", "Error", "IPAddress"}

// HostStatus is the outcome of collecting one host
type HostStatus string

const (
	HostCollected HostStatus = statusCollected
	HostSkipped   HostStatus = statusSkipped
	HostFailed    HostStatus = statusFailed
)

// HostResult is what one domain controller contributed to a run
type HostResult struct {
	Host   string
	Status HostStatus
	// Records are newest first
	Records   []netlogon.LogRecord
	Malformed int
	Err       error
	Duration  time.Duration
}

// Report is the outcome of a collection run
type Report struct {
	GeneratedAt time.Time
	Cutoff      time.Time
	Hosts       []HostResult
	// Rows are the deduplicated records, sorted by IP address
	Rows []netlogon.LogRecord
	// Path of the written CSV file, empty when the export failed
	Path string
}

// Records returns every collected record in host order
func (r *Report) Records() []netlogon.LogRecord {
	var records []netlogon.LogRecord
	for _, host := range r.Hosts {
		records = append(records, host.Records...)
	}
	return records
}

// Count returns the number of hosts with status
func (r *Report) Count(status HostStatus) int {
	n := 0
	for _, host := range r.Hosts {
		if host.Status == status {
			n++
		}
	}
	return n
}

// FailedHosts returns the names of failed hosts
func (r *Report) FailedHosts() []string {
	var hosts []string
	for _, host := range r.Hosts {
		if host.Status == HostFailed {
			hosts = append(hosts, host.Host)
		}
	}
	return hosts
}

// Dedupe keeps one record per IP address. Records are stably sorted by IP
// address and the first record of each address in input order is kept.
func Dedupe(records []netlogon.LogRecord) []netlogon.LogRecord {
	sorted := append([]netlogon.LogRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].IPAddress < sorted[j].IPAddress
	})

	rows := make([]netlogon.LogRecord, 0, len(sorted))
	for i, record := range sorted {
		if i > 0 && record.IPAddress == sorted[i-1].IPAddress {
			continue
		}
		rows = append(rows, record)
	}
	return rows
}

// ReportFileName returns the report file name for a run at t
func ReportFileName(t time.Time) string {
	return reportFilePrefix + t.Format(reportDateLayout) + ".csv"
}

// EncodeCSV renders rows with a header row, even when there are no rows
func EncodeCSV(rows []netlogon.LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(ReportHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		err := w.Write([]string{
			row.Date.Format(rowDateLayout),
			row.Client,
			row.User,
			row.Domain,
			row.Error,
			row.IPAddress,
		})
		if err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteReport writes content to the dated report file in dir. The file is
// written next to its destination then renamed, so an existing report is
// only replaced by a complete one.
func WriteReport(dir string, generatedAt time.Time, content []byte) (string, error) {
	path := filepath.Join(dir, ReportFileName(generatedAt))
	tmpPath := path + ".tmp"

	//nolint:gosec // report is meant to be readable by operators
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename report: %w", err)
	}

	return path, nil
}
