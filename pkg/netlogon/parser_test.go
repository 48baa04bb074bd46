package netlogon_test

import (
	"fmt"
	"math/rand/v2"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scality/netlogon-courier/pkg/netlogon"
)

func noSiteLine(t time.Time, client, ip string) string {
	return fmt.Sprintf("%s [1234] %s CONTOSO NO_CLIENT_SITE: jdoe %s",
		t.Format("01/02 15:04:05"), client, ip)
}

var _ = Describe("Parser", func() {
	var (
		reference time.Time
		parser    *netlogon.Parser
	)

	BeforeEach(func() {
		reference = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
		parser = netlogon.NewParser(reference, time.UTC)
	})

	Describe("Tokenize", func() {
		It("should collapse runs of whitespace", func() {
			Expect(netlogon.Tokenize("03/14  10:00:00 \t[1]  A")).
				To(Equal([]string{"03/14", "10:00:00", "[1]", "A"}))
		})

		It("should return no tokens for a blank line", func() {
			Expect(netlogon.Tokenize("   ")).To(BeEmpty())
		})
	})

	Describe("ParseLine", func() {
		It("should map fixed token positions to record fields", func() {
			record, err := parser.ParseLine("03/14 10:20:30 [1234] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Date).To(Equal(time.Date(2026, 3, 14, 10, 20, 30, 0, time.UTC)))
			Expect(record.Client).To(Equal("WKS01"))
			Expect(record.Domain).To(Equal("CONTOSO"))
			Expect(record.Error).To(Equal("NO_CLIENT_SITE:"))
			Expect(record.User).To(Equal("jdoe"))
			Expect(record.IPAddress).To(Equal("10.0.0.5"))
		})

		It("should tolerate irregular spacing between tokens", func() {
			record, err := parser.ParseLine("03/14   10:20:30 [1234]  WKS01 CONTOSO NO_CLIENT_SITE:  jdoe 10.0.0.5")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Client).To(Equal("WKS01"))
			Expect(record.IPAddress).To(Equal("10.0.0.5"))
		})

		It("should accept a date with a year", func() {
			record, err := parser.ParseLine("12/31/2025 23:59:59 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Date).To(Equal(time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)))
		})

		It("should use midnight when token 1 is not a clock time", func() {
			record, err := parser.ParseLine("03/14 x [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Date).To(Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)))
		})

		It("should place a yearless date in the previous year when it would be in the future", func() {
			parser = netlogon.NewParser(time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC), time.UTC)
			record, err := parser.ParseLine("12/30 09:00:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Date).To(Equal(time.Date(2025, 12, 30, 9, 0, 0, 0, time.UTC)))
		})

		It("should interpret dates in the parser location", func() {
			loc := time.FixedZone("UTC+2", 2*60*60)
			parser = netlogon.NewParser(reference, loc)
			record, err := parser.ParseLine("03/14 10:00:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Date.UTC()).To(Equal(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)))
		})

		Context("on a daylight saving change day", func() {
			var newYork *time.Location

			BeforeEach(func() {
				var err error
				newYork, err = time.LoadLocation("America/New_York")
				Expect(err).NotTo(HaveOccurred())
				parser = netlogon.NewParser(time.Date(2026, 3, 10, 12, 0, 0, 0, newYork), newYork)
			})

			It("should keep the logged wall clock for a dated line", func() {
				record, err := parser.ParseLine("03/08/2026 10:00:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Date.Hour()).To(Equal(10))
				_, offset := record.Date.Zone()
				Expect(offset).To(Equal(-4 * 60 * 60))
				Expect(record.Date).To(BeTemporally("==", time.Date(2026, 3, 8, 14, 0, 0, 0, time.UTC)))
			})

			It("should keep the logged wall clock for a yearless line", func() {
				record, err := parser.ParseLine("03/08 10:00:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Date).To(BeTemporally("==", time.Date(2026, 3, 8, 14, 0, 0, 0, time.UTC)))
			})

			It("should keep the standard offset before the change", func() {
				record, err := parser.ParseLine("03/08 01:30:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Date).To(BeTemporally("==", time.Date(2026, 3, 8, 6, 30, 0, 0, time.UTC)))
			})
		})

		Context("with a yearless 02/29", func() {
			It("should use the latest leap year before a non-leap reference", func() {
				parser = netlogon.NewParser(time.Date(2029, 3, 1, 0, 0, 0, 0, time.UTC), time.UTC)
				record, err := parser.ParseLine("02/29 10:00:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Date).To(Equal(time.Date(2028, 2, 29, 10, 0, 0, 0, time.UTC)))
			})

			It("should use the reference year when it is a leap year", func() {
				parser = netlogon.NewParser(time.Date(2028, 3, 1, 0, 0, 0, 0, time.UTC), time.UTC)
				record, err := parser.ParseLine("02/29 10:00:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Date).To(Equal(time.Date(2028, 2, 29, 10, 0, 0, 0, time.UTC)))
			})

			It("should skip a leap reference year when the date is still ahead", func() {
				parser = netlogon.NewParser(time.Date(2028, 1, 15, 0, 0, 0, 0, time.UTC), time.UTC)
				record, err := parser.ParseLine("02/29 10:00:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Date).To(Equal(time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)))
			})
		})

		It("should reject lines with fewer than 8 tokens", func() {
			_, err := parser.ParseLine("03/14 10:00:00 [1] WKS01 CONTOSO")
			Expect(err).To(HaveOccurred())

			var perr *netlogon.ParseError
			Expect(err).To(BeAssignableToTypeOf(perr))
			Expect(err.Error()).To(ContainSubstring("expected at least 8 tokens, got 5"))
		})

		It("should reject an unparseable date token", func() {
			_, err := parser.ParseLine("yesterday 10:00:00 [1] WKS01 CONTOSO NO_CLIENT_SITE: jdoe 10.0.0.5")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid date token"))
		})
	})

	Describe("ScanRecent", func() {
		var cutoff time.Time

		BeforeEach(func() {
			cutoff = reference.AddDate(0, 0, -7)
		})

		It("should collect only lines newer than the cutoff, newest first", func() {
			lines := []string{
				noSiteLine(reference.AddDate(0, 0, -10), "OLD1", "10.0.0.1"),
				noSiteLine(reference.AddDate(0, 0, -9), "OLD2", "10.0.0.2"),
				noSiteLine(reference.AddDate(0, 0, -3), "NEW1", "10.0.0.3"),
				noSiteLine(reference.AddDate(0, 0, -2), "NEW2", "10.0.0.4"),
				noSiteLine(reference.AddDate(0, 0, -1), "NEW3", "10.0.0.5"),
			}

			result := parser.ScanRecent(lines, cutoff)
			Expect(result.Records).To(HaveLen(3))
			Expect(result.Records[0].Client).To(Equal("NEW3"))
			Expect(result.Records[1].Client).To(Equal("NEW2"))
			Expect(result.Records[2].Client).To(Equal("NEW1"))
			Expect(result.Stopped).To(BeTrue())
		})

		It("should keep a line dated exactly at the cutoff", func() {
			lines := []string{noSiteLine(cutoff, "EDGE", "10.0.0.9")}

			result := parser.ScanRecent(lines, cutoff)
			Expect(result.Records).To(HaveLen(1))
			Expect(result.Stopped).To(BeFalse())
		})

		It("should stop at the first stale line even if older lines look recent", func() {
			lines := []string{
				noSiteLine(reference.AddDate(0, 0, -1), "OUT_OF_ORDER", "10.0.0.1"),
				noSiteLine(reference.AddDate(0, 0, -20), "STALE", "10.0.0.2"),
				noSiteLine(reference.AddDate(0, 0, -1), "NEW", "10.0.0.3"),
			}

			result := parser.ScanRecent(lines, cutoff)
			Expect(result.Records).To(HaveLen(1))
			Expect(result.Records[0].Client).To(Equal("NEW"))
		})

		It("should skip malformed lines without ending the scan", func() {
			lines := []string{
				noSiteLine(reference.AddDate(0, 0, -2), "NEW1", "10.0.0.1"),
				"03/14 10:00:00 truncated",
				"",
				"garbage line with enough tokens to pass the count check",
				noSiteLine(reference.AddDate(0, 0, -1), "NEW2", "10.0.0.2"),
			}

			result := parser.ScanRecent(lines, cutoff)
			Expect(result.Records).To(HaveLen(2))
			Expect(result.Malformed).To(HaveLen(2))
			Expect(result.Stopped).To(BeFalse())
		})

		It("should return nothing for no lines", func() {
			result := parser.ScanRecent(nil, cutoff)
			Expect(result.Records).To(BeEmpty())
			Expect(result.Malformed).To(BeEmpty())
		})

		It("should match a forward filter on chronologically sorted input", func() {
			rng := rand.New(rand.NewPCG(42, 7))

			for round := 0; round < 50; round++ {
				n := rng.IntN(40)
				start := reference.AddDate(0, 0, -14)
				lines := make([]string, 0, n)
				offset := time.Duration(0)
				for i := 0; i < n; i++ {
					offset += time.Duration(rng.IntN(8*60*60)) * time.Second
					at := start.Add(offset)
					lines = append(lines, noSiteLine(at, fmt.Sprintf("C%d", i), fmt.Sprintf("10.0.%d.%d", round, i)))
				}

				var expected []netlogon.LogRecord
				for _, line := range lines {
					record, err := parser.ParseLine(line)
					Expect(err).NotTo(HaveOccurred())
					if !record.Date.Before(cutoff) {
						expected = append([]netlogon.LogRecord{record}, expected...)
					}
				}

				result := parser.ScanRecent(lines, cutoff)
				if len(expected) == 0 {
					Expect(result.Records).To(BeEmpty())
				} else {
					Expect(result.Records).To(Equal(expected))
				}
			}
		})
	})
})
