package netlogoncourier_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scality/netlogon-courier/pkg/netlogon"
	"github.com/scality/netlogon-courier/pkg/netlogoncourier"
)

func record(host, client, ip string, date time.Time) netlogon.LogRecord {
	return netlogon.LogRecord{
		Date:      date,
		Client:    client,
		Domain:    "CONTOSO",
		Error:     "NO_CLIENT_SITE:",
		User:      "jdoe",
		IPAddress: ip,
		Host:      host,
	}
}

var _ = Describe("Dedupe", func() {
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	It("should keep one row per IP sorted by IP", func() {
		rows := netlogoncourier.Dedupe([]netlogon.LogRecord{
			record("dc1", "C", "10.0.0.9", day),
			record("dc1", "A", "10.0.0.1", day),
			record("dc2", "B", "10.0.0.5", day),
			record("dc2", "A2", "10.0.0.1", day),
		})

		Expect(rows).To(HaveLen(3))
		Expect(rows[0].IPAddress).To(Equal("10.0.0.1"))
		Expect(rows[1].IPAddress).To(Equal("10.0.0.5"))
		Expect(rows[2].IPAddress).To(Equal("10.0.0.9"))
	})

	It("should keep the first record of an IP in collected order", func() {
		rows := netlogoncourier.Dedupe([]netlogon.LogRecord{
			record("dcA", "WKS-A", "10.0.0.5", day),
			record("dcB", "WKS-B", "10.0.0.5", day.AddDate(0, 0, 1)),
		})

		Expect(rows).To(HaveLen(1))
		Expect(rows[0].Host).To(Equal("dcA"))
		Expect(rows[0].Client).To(Equal("WKS-A"))
	})

	It("should be idempotent", func() {
		records := []netlogon.LogRecord{
			record("dc1", "A", "10.0.0.3", day),
			record("dc1", "B", "10.0.0.1", day),
			record("dc2", "C", "10.0.0.3", day),
			record("dc2", "D", "10.0.0.2", day),
			record("dc3", "E", "10.0.0.1", day),
		}

		once := netlogoncourier.Dedupe(records)
		Expect(netlogoncourier.Dedupe(once)).To(Equal(once))
	})

	It("should not modify its input", func() {
		records := []netlogon.LogRecord{
			record("dc1", "B", "10.0.0.2", day),
			record("dc1", "A", "10.0.0.1", day),
		}
		_ = netlogoncourier.Dedupe(records)
		Expect(records[0].Client).To(Equal("B"))
	})

	It("should return no rows for no records", func() {
		Expect(netlogoncourier.Dedupe(nil)).To(BeEmpty())
	})
})

var _ = Describe("Report files", func() {
	generatedAt := time.Date(2026, 3, 5, 23, 59, 0, 0, time.UTC)

	It("should name the report after the run date", func() {
		Expect(netlogoncourier.ReportFileName(generatedAt)).To(Equal("NoClientSiteSubnets-03052026.csv"))
	})

	It("should write only the header for no rows", func() {
		content, err := netlogoncourier.EncodeCSV(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("Date,Client,User,Domain,Error,IPAddress\n"))
	})

	It("should write one line per row in column order", func() {
		content, err := netlogoncourier.EncodeCSV([]netlogon.LogRecord{
			record("dc1", "WKS01", "10.0.0.5", time.Date(2026, 3, 4, 8, 5, 9, 0, time.UTC)),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal(
			"Date,Client,User,Domain,Error,IPAddress\n" +
				"03/04/2026 08:05:09,WKS01,jdoe,CONTOSO,NO_CLIENT_SITE:,10.0.0.5\n"))
	})

	It("should replace an existing report without leaving a temporary file", func() {
		dir := GinkgoT().TempDir()

		_, err := netlogoncourier.WriteReport(dir, generatedAt, []byte("old\n"))
		Expect(err).NotTo(HaveOccurred())
		path, err := netlogoncourier.WriteReport(dir, generatedAt, []byte("new\n"))
		Expect(err).NotTo(HaveOccurred())

		Expect(path).To(Equal(filepath.Join(dir, "NoClientSiteSubnets-03052026.csv")))
		Expect(os.ReadFile(path)).To(Equal([]byte("new\n")))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("should fail when the directory does not exist", func() {
		_, err := netlogoncourier.WriteReport(filepath.Join(GinkgoT().TempDir(), "missing"), generatedAt, nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Report", func() {
	It("should concatenate records in host order and count statuses", func() {
		day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
		report := &netlogoncourier.Report{
			Hosts: []netlogoncourier.HostResult{
				{Host: "dc1", Status: netlogoncourier.HostCollected, Records: []netlogon.LogRecord{record("dc1", "A", "10.0.0.1", day)}},
				{Host: "dc2", Status: netlogoncourier.HostSkipped},
				{Host: "dc3", Status: netlogoncourier.HostFailed},
				{Host: "dc4", Status: netlogoncourier.HostCollected, Records: []netlogon.LogRecord{record("dc4", "B", "10.0.0.2", day)}},
			},
		}

		records := report.Records()
		Expect(records).To(HaveLen(2))
		Expect(records[0].Host).To(Equal("dc1"))
		Expect(records[1].Host).To(Equal("dc4"))
		Expect(report.Count(netlogoncourier.HostCollected)).To(Equal(2))
		Expect(report.Count(netlogoncourier.HostSkipped)).To(Equal(1))
		Expect(report.FailedHosts()).To(Equal([]string{"dc3"}))
	})
})
