package netlogon

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Accepted layouts for the date token. NETLOGON writes MM/dd without a year.
var dateLayouts = []string{"01/02/2006", "01/02"}

const clockLayout = "15:04:05"

// ParseError describes a line that could not be mapped to a LogRecord
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed netlogon line (%s): %q", e.Reason, e.Line)
}

// Parser turns raw NETLOGON lines into LogRecords.
//
// Reference is the instant used to infer the year of dates logged without
// one; Location is the time zone the domain controllers log in.
type Parser struct {
	Reference time.Time
	Location  *time.Location
}

// NewParser creates a parser resolving yearless dates against reference
func NewParser(reference time.Time, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Reference: reference, Location: loc}
}

// Tokenize splits a line on runs of whitespace
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// ParseLine builds a LogRecord from the fixed token positions of line.
// Lines with fewer than 8 tokens or an unparseable date yield a *ParseError.
func (p *Parser) ParseLine(line string) (LogRecord, error) {
	tokens := Tokenize(line)
	if len(tokens) < minLineTokens {
		return LogRecord{}, &ParseError{
			Line:   line,
			Reason: fmt.Sprintf("expected at least %d tokens, got %d", minLineTokens, len(tokens)),
		}
	}

	date, err := p.parseTimestamp(tokens[tokenDate], tokens[tokenTime])
	if err != nil {
		return LogRecord{}, &ParseError{Line: line, Reason: err.Error()}
	}

	return LogRecord{
		Date:      date,
		Client:    tokens[tokenClient],
		Domain:    tokens[tokenDomain],
		Error:     tokens[tokenError],
		User:      tokens[tokenUser],
		IPAddress: tokens[tokenIP],
	}, nil
}

func (p *Parser) parseTimestamp(dateToken, clockToken string) (time.Time, error) {
	// Date and clock are parsed together so that the wall clock is kept on
	// days where the zone offset changes.
	if _, err := time.Parse(clockLayout, clockToken); err == nil {
		if t, ok := p.parseDate(dateToken+" "+clockToken, " "+clockLayout); ok {
			return t, nil
		}
	}

	if t, ok := p.parseDate(dateToken, ""); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date token %q", dateToken)
}

func (p *Parser) parseDate(value, clockSuffix string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout+clockSuffix, value, p.Location)
		if err != nil {
			continue
		}
		if !strings.Contains(layout, "2006") {
			t = p.withInferredYear(t)
		}
		return t, true
	}
	return time.Time{}, false
}

// withInferredYear places a yearless date in the reference year, or the
// year before when that would put it more than a day after the reference.
// 02/29 lands in the latest leap year that satisfies the same bound.
func (p *Parser) withInferredYear(date time.Time) time.Time {
	ref := p.Reference.In(p.Location)
	latest := ref.Add(24 * time.Hour)

	year := ref.Year()
	for {
		// A month change means the day does not exist in that year
		if time.Date(year, date.Month(), date.Day(), 0, 0, 0, 0, time.UTC).Month() == date.Month() {
			candidate := time.Date(year, date.Month(), date.Day(),
				date.Hour(), date.Minute(), date.Second(), 0, p.Location)
			if !candidate.After(latest) {
				return candidate
			}
		}
		year--
	}
}

// ScanResult is the outcome of scanning the tail of one log file
type ScanResult struct {
	// Records in scan order: newest line first
	Records []LogRecord
	// Malformed holds the lines skipped because they could not be parsed
	Malformed []*ParseError
	// Stopped is true when the scan ended on a line older than the cutoff
	Stopped bool
}

// ScanRecent walks lines from the newest (last) to the oldest and collects
// records dated at or after cutoff. Lines are assumed to be chronological,
// so the first well-formed line older than cutoff ends the scan. Malformed
// lines are skipped and reported without ending the scan.
func (p *Parser) ScanRecent(lines []string, cutoff time.Time) ScanResult {
	var result ScanResult

	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, err := p.ParseLine(line)
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				result.Malformed = append(result.Malformed, perr)
			}
			continue
		}

		if record.Date.Before(cutoff) {
			result.Stopped = true
			break
		}
		result.Records = append(result.Records, record)
	}

	return result
}
