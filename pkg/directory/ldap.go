package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

const (
	// crossRef systemFlags bit marking a domain naming context
	domainCrossRefFilter = "(&(objectClass=crossRef)(systemFlags:1.2.840.113556.1.4.803:=2))"

	// userAccountControl SERVER_TRUST_ACCOUNT (8192) marks domain controllers
	domainControllerFilter = "(&(objectCategory=computer)(userAccountControl:1.2.840.113556.1.4.803:=8192))"

	defaultPageSize = 500
	defaultTimeout  = 30 * time.Second
)

// Searcher is the subset of *ldap.Conn used to query the directory
type Searcher interface {
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(searchRequest *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
}

// LDAPConfig holds directory connection settings
type LDAPConfig struct {
	// URL of a domain controller; point it at a global catalog
	// (ldap://gc.example.com:3268) to see every domain of a multi-domain forest
	URL          string
	BindDN       string
	BindPassword string
	StartTLS     bool
	SkipVerify   bool
	Timeout      time.Duration
	PageSize     uint32
	Logger       *slog.Logger
}

// LDAPDirectory enumerates domains and domain controllers from Active Directory
type LDAPDirectory struct {
	searcher Searcher
	conn     *ldap.Conn
	configNC string
	pageSize uint32
	timeout  time.Duration
	logger   *slog.Logger
}

// OpenLDAPDirectory connects and binds to the directory, then reads the
// configuration naming context from RootDSE.
func OpenLDAPDirectory(ctx context.Context, cfg LDAPConfig) (*LDAPDirectory, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ldap url is required")
	}
	if cfg.BindDN != "" && cfg.BindPassword == "" {
		// AD treats a DN with an empty password as an unauthenticated bind
		return nil, fmt.Errorf("ldap bind password is required when a bind DN is set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ldap connect: %w", err)
	}

	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ldap bind: %w", err)
		}
	}

	d := newLDAPDirectory(conn, "", cfg)
	d.conn = conn

	configNC, err := d.readConfigurationNC(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	d.configNC = configNC

	cfg.Logger.Info("connected to directory", "url", cfg.URL, "configurationNC", configNC)
	return d, nil
}

// NewLDAPDirectoryWithSearcher builds a directory on an existing searcher
// and a known configuration naming context
func NewLDAPDirectoryWithSearcher(searcher Searcher, configNC string, cfg LDAPConfig) *LDAPDirectory {
	return newLDAPDirectory(searcher, configNC, cfg)
}

func newLDAPDirectory(searcher Searcher, configNC string, cfg LDAPConfig) *LDAPDirectory {
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LDAPDirectory{
		searcher: searcher,
		configNC: configNC,
		pageSize: pageSize,
		timeout:  timeout,
		logger:   logger,
	}
}

// Close closes the underlying connection
func (d *LDAPDirectory) Close() error {
	if d.conn != nil {
		d.conn.Close()
	}
	return nil
}

// Domains lists the domain partitions registered under CN=Partitions
func (d *LDAPDirectory) Domains(ctx context.Context) ([]Domain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchReq := ldap.NewSearchRequest(
		"CN=Partitions,"+d.configNC,
		ldap.ScopeSingleLevel,
		ldap.NeverDerefAliases, 0, d.timeLimit(ctx), false,
		domainCrossRefFilter,
		[]string{"dnsRoot", "nCName", "nETBIOSName"},
		nil,
	)

	result, err := d.searcher.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("ldap search partitions: %w", err)
	}

	domains := DomainsFromEntries(result.Entries)
	d.logger.Debug("listed domains", "nDomains", len(domains))
	return domains, nil
}

// DomainControllers lists the computer accounts of a domain flagged as
// server trust accounts
func (d *LDAPDirectory) DomainControllers(ctx context.Context, domain Domain) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if domain.NamingContext == "" {
		return nil, fmt.Errorf("domain %s has no naming context", domain.Name)
	}

	searchReq := ldap.NewSearchRequest(
		domain.NamingContext,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 0, d.timeLimit(ctx), false,
		domainControllerFilter,
		[]string{"dNSHostName", "cn"},
		nil,
	)

	result, err := d.searcher.SearchWithPaging(searchReq, d.pageSize)
	if err != nil {
		return nil, fmt.Errorf("ldap search domain controllers: %w", err)
	}

	hosts := HostsFromEntries(domain, result.Entries)
	d.logger.Debug("listed domain controllers", "domain", domain.Name, "nHosts", len(hosts))
	return hosts, nil
}

// DomainsFromEntries maps crossRef entries to domains sorted by DNS name
func DomainsFromEntries(entries []*ldap.Entry) []Domain {
	domains := make([]Domain, 0, len(entries))
	for _, entry := range entries {
		nc := entry.GetAttributeValue("nCName")
		if nc == "" {
			continue
		}
		name := entry.GetAttributeValue("dnsRoot")
		if name == "" {
			name = dnToDNSName(nc)
		}
		domains = append(domains, Domain{
			Name:          strings.ToLower(name),
			NamingContext: nc,
			NetBIOSName:   entry.GetAttributeValue("nETBIOSName"),
		})
	}
	sort.Slice(domains, func(i, j int) bool {
		return domains[i].Name < domains[j].Name
	})
	return domains
}

// HostsFromEntries maps computer entries to host names sorted
// alphabetically. Accounts without dNSHostName fall back to cn + domain.
func HostsFromEntries(domain Domain, entries []*ldap.Entry) []string {
	hosts := make([]string, 0, len(entries))
	for _, entry := range entries {
		host := entry.GetAttributeValue("dNSHostName")
		if host == "" {
			cn := entry.GetAttributeValue("cn")
			if cn == "" {
				continue
			}
			host = cn
			if domain.Name != "" {
				host = cn + "." + domain.Name
			}
		}
		hosts = append(hosts, strings.ToLower(host))
	}
	sort.Strings(hosts)
	return hosts
}

// dnToDNSName turns DC=corp,DC=example,DC=com into corp.example.com
func dnToDNSName(dn string) string {
	var labels []string
	for _, rdn := range strings.Split(dn, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(rdn), "=")
		if ok && strings.EqualFold(key, "DC") {
			labels = append(labels, value)
		}
	}
	return strings.Join(labels, ".")
}

func (d *LDAPDirectory) readConfigurationNC(ctx context.Context) (string, error) {
	searchReq := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases, 0, d.timeLimit(ctx), false,
		"(objectClass=*)",
		[]string{"configurationNamingContext"},
		nil,
	)

	result, err := d.searcher.Search(searchReq)
	if err != nil {
		return "", fmt.Errorf("ldap read rootDSE: %w", err)
	}
	if len(result.Entries) != 1 {
		return "", fmt.Errorf("unexpected rootDSE result: %d entries", len(result.Entries))
	}
	configNC := result.Entries[0].GetAttributeValue("configurationNamingContext")
	if configNC == "" {
		return "", fmt.Errorf("rootDSE has no configurationNamingContext")
	}
	return configNC, nil
}

// timeLimit is the server-side search time limit in seconds, bounded by
// the context deadline when there is one
func (d *LDAPDirectory) timeLimit(ctx context.Context) int {
	limit := d.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < limit {
			limit = remaining
		}
	}
	seconds := int(limit.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func connect(ctx context.Context, cfg LDAPConfig) (*ldap.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.SkipVerify} //nolint:gosec // opt-in for lab forests

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var (
		conn *ldap.Conn
		err  error
	)
	if strings.HasPrefix(cfg.URL, "ldaps://") {
		conn, err = ldap.DialURL(cfg.URL, ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(tlsCfg))
	} else {
		conn, err = ldap.DialURL(cfg.URL, ldap.DialWithDialer(dialer))
	}
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(cfg.Timeout)

	if cfg.StartTLS && !strings.HasPrefix(cfg.URL, "ldaps://") {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}

	return conn, nil
}
