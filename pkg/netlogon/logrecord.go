package netlogon

import (
	"fmt"
	"time"
)

// Token positions of a NO_CLIENT_SITE line
const (
	tokenDate     = 0
	tokenTime     = 1
	tokenClient   = 3
	tokenDomain   = 4
	tokenError    = 5
	tokenUser     = 6
	tokenIP       = 7
	minLineTokens = 8
)

// LogRecord is one NETLOGON line reporting a client that could not be
// mapped to an AD site
type LogRecord struct {
	Date      time.Time // token 0 (+ token 1 when it is a clock time)
	Client    string    // token 3
	Domain    string    // token 4
	Error     string    // token 5
	User      string    // token 6
	IPAddress string    // token 7

	// Host is the domain controller the line was read from
	Host string
}

// String returns a string representation for logging
func (r LogRecord) String() string {
	return fmt.Sprintf("LogRecord{Host: %s, Date: %s, Client: %s, IP: %s}",
		r.Host, r.Date.Format(time.RFC3339), r.Client, r.IPAddress)
}
