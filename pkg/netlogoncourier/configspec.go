package netlogoncourier

import "github.com/scality/netlogon-courier/pkg/util"

// EnvPrefix prefixes every environment variable read by netlogon-courier
const EnvPrefix = "NETLOGON_COURIER_"

// ConfigSpec defines all configuration items for netlogon-courier
//
//nolint:gochecknoglobals // global config spec is intentional
var ConfigSpec = util.ConfigSpec{
	// Export
	"export.path": util.ConfigVarSpec{
		Help:         "Existing directory receiving the CSV report",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "EXPORT_PATH",
		Required:     true,
	},
	"export.days": util.ConfigVarSpec{
		Help:         "Keep log entries from the last N days (1-31)",
		DefaultValue: 1,
		EnvVar:       EnvPrefix + "EXPORT_DAYS",
	},

	// Collector
	"collector.log-max-lines": util.ConfigVarSpec{
		Help:         "Lines read per log file: negative reads the last N lines, positive the first N",
		DefaultValue: -250,
		EnvVar:       EnvPrefix + "COLLECTOR_LOG_MAX_LINES",
	},
	"collector.log-path": util.ConfigVarSpec{
		Help:         "NETLOGON log path relative to the share root",
		DefaultValue: `debug\netlogon.log`,
		EnvVar:       EnvPrefix + "COLLECTOR_LOG_PATH",
	},
	"collector.hosts": util.ConfigVarSpec{
		Help:         "Comma-separated domain controllers to read instead of querying the directory",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "COLLECTOR_HOSTS",
		ParseFunc:    util.HostListParser,
	},
	"collector.num-workers": util.ConfigVarSpec{
		Help:         "Number of hosts read in parallel (1 visits hosts one at a time)",
		DefaultValue: 8,
		EnvVar:       EnvPrefix + "COLLECTOR_NUM_WORKERS",
	},
	"collector.host-timeout-seconds": util.ConfigVarSpec{
		Help:         "Maximum time spent on a single host, retries included",
		DefaultValue: 120,
		EnvVar:       EnvPrefix + "COLLECTOR_HOST_TIMEOUT_SECONDS",
	},
	"collector.max-hosts-per-second": util.ConfigVarSpec{
		Help:         "Rate limit on new host connections (0 disables the limit)",
		DefaultValue: 0,
		EnvVar:       EnvPrefix + "COLLECTOR_MAX_HOSTS_PER_SECOND",
	},
	"collector.timezone": util.ConfigVarSpec{
		Help:         "Time zone of the log timestamps (IANA name or Local)",
		DefaultValue: "Local",
		EnvVar:       EnvPrefix + "COLLECTOR_TIMEZONE",
	},

	// Retry
	"retry.max-retries": util.ConfigVarSpec{
		Help:         "Maximum retries of a host after a transient failure",
		DefaultValue: 2,
		EnvVar:       EnvPrefix + "RETRY_MAX_RETRIES",
	},
	"retry.initial-backoff-seconds": util.ConfigVarSpec{
		Help:         "Initial backoff between host retries",
		DefaultValue: 1,
		EnvVar:       EnvPrefix + "RETRY_INITIAL_BACKOFF_SECONDS",
	},
	"retry.max-backoff-seconds": util.ConfigVarSpec{
		Help:         "Maximum backoff between host retries",
		DefaultValue: 10,
		EnvVar:       EnvPrefix + "RETRY_MAX_BACKOFF_SECONDS",
	},
	"retry.backoff-jitter-factor": util.ConfigVarSpec{
		Help:         "Jitter factor applied to backoff durations (0.0 to 1.0)",
		DefaultValue: 0.2,
		EnvVar:       EnvPrefix + "RETRY_BACKOFF_JITTER_FACTOR",
	},

	// Share access
	"share.mode": util.ConfigVarSpec{
		Help:         "How log files are reached: smb or local",
		DefaultValue: "smb",
		EnvVar:       EnvPrefix + "SHARE_MODE",
	},
	"share.local-root-template": util.ConfigVarSpec{
		Help:         "Local directory of a host's share in local mode, with a {host} placeholder",
		DefaultValue: "/mnt/dc/{host}",
		EnvVar:       EnvPrefix + "SHARE_LOCAL_ROOT_TEMPLATE",
	},
	"smb.share": util.ConfigVarSpec{
		Help:         "Administrative share holding the log",
		DefaultValue: "ADMIN$",
		EnvVar:       EnvPrefix + "SMB_SHARE",
	},
	"smb.username": util.ConfigVarSpec{
		Help:         "SMB user name",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "SMB_USERNAME",
		Required:     true,
	},
	"smb.password": util.ConfigVarSpec{
		Help:         "SMB password",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "SMB_PASSWORD",
	},
	"smb.domain": util.ConfigVarSpec{
		Help:         "SMB NTLM domain",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "SMB_DOMAIN",
	},
	"smb.port": util.ConfigVarSpec{
		Help:         "SMB TCP port",
		DefaultValue: 445,
		EnvVar:       EnvPrefix + "SMB_PORT",
	},

	// Directory
	"ldap.url": util.ConfigVarSpec{
		Help:         "Directory URL, preferably a global catalog (ldap://gc.example.com:3268)",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "LDAP_URL",
		Required:     true,
	},
	"ldap.bind-dn": util.ConfigVarSpec{
		Help:         "Bind DN (empty for an anonymous bind)",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "LDAP_BIND_DN",
	},
	"ldap.bind-password": util.ConfigVarSpec{
		Help:         "Bind password",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "LDAP_BIND_PASSWORD",
	},
	"ldap.start-tls": util.ConfigVarSpec{
		Help:         "Upgrade ldap:// connections with StartTLS",
		DefaultValue: false,
		EnvVar:       EnvPrefix + "LDAP_START_TLS",
	},
	"ldap.skip-verify": util.ConfigVarSpec{
		Help:         "Skip TLS certificate verification",
		DefaultValue: false,
		EnvVar:       EnvPrefix + "LDAP_SKIP_VERIFY",
	},
	"ldap.timeout-seconds": util.ConfigVarSpec{
		Help:         "Directory connection and search timeout",
		DefaultValue: 30,
		EnvVar:       EnvPrefix + "LDAP_TIMEOUT_SECONDS",
	},
	"ldap.page-size": util.ConfigVarSpec{
		Help:         "Page size of domain controller searches",
		DefaultValue: 500,
		EnvVar:       EnvPrefix + "LDAP_PAGE_SIZE",
	},

	// ClickHouse sink
	"clickhouse.enabled": util.ConfigVarSpec{
		Help:         "Insert report rows into ClickHouse",
		DefaultValue: false,
		EnvVar:       EnvPrefix + "CLICKHOUSE_ENABLED",
	},
	"clickhouse.url": util.ConfigVarSpec{
		Help:         "Comma-separated ClickHouse addresses",
		DefaultValue: "localhost:9000",
		EnvVar:       EnvPrefix + "CLICKHOUSE_URL",
		ParseFunc:    util.HostListParser,
		Required:     true,
	},
	"clickhouse.username": util.ConfigVarSpec{
		Help:         "ClickHouse username",
		DefaultValue: "default",
		EnvVar:       EnvPrefix + "CLICKHOUSE_USERNAME",
	},
	"clickhouse.password": util.ConfigVarSpec{
		Help:         "ClickHouse password",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "CLICKHOUSE_PASSWORD",
	},
	"clickhouse.database": util.ConfigVarSpec{
		Help:         "ClickHouse database",
		DefaultValue: "netlogon",
		EnvVar:       EnvPrefix + "CLICKHOUSE_DATABASE",
	},
	"clickhouse.timeout-seconds": util.ConfigVarSpec{
		Help:         "ClickHouse query timeout in seconds",
		DefaultValue: 30,
		EnvVar:       EnvPrefix + "CLICKHOUSE_TIMEOUT_SECONDS",
	},

	// S3 sink
	"s3.enabled": util.ConfigVarSpec{
		Help:         "Upload the report to S3",
		DefaultValue: false,
		EnvVar:       EnvPrefix + "S3_ENABLED",
	},
	"s3.endpoint": util.ConfigVarSpec{
		Help:         "S3 endpoint (empty for AWS)",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "S3_ENDPOINT",
	},
	"s3.region": util.ConfigVarSpec{
		Help:         "S3 region",
		DefaultValue: "us-east-1",
		EnvVar:       EnvPrefix + "S3_REGION",
	},
	"s3.bucket": util.ConfigVarSpec{
		Help:         "Bucket receiving reports",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "S3_BUCKET",
		Required:     true,
	},
	"s3.prefix": util.ConfigVarSpec{
		Help:         "Key prefix of uploaded reports",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "S3_PREFIX",
	},
	"s3.access-key-id": util.ConfigVarSpec{
		Help:         "S3 access key ID",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "S3_ACCESS_KEY_ID",
		Required:     true,
	},
	"s3.secret-access-key": util.ConfigVarSpec{
		Help:         "S3 secret access key",
		DefaultValue: "",
		EnvVar:       EnvPrefix + "S3_SECRET_ACCESS_KEY",
		Required:     true,
	},
	"s3.max-retry-attempts": util.ConfigVarSpec{
		Help:         "Maximum SDK attempts per upload",
		DefaultValue: 3,
		EnvVar:       EnvPrefix + "S3_MAX_RETRY_ATTEMPTS",
	},
	"s3.max-backoff-delay-seconds": util.ConfigVarSpec{
		Help:         "Maximum SDK backoff between upload attempts",
		DefaultValue: 20,
		EnvVar:       EnvPrefix + "S3_MAX_BACKOFF_DELAY_SECONDS",
	},

	// Metrics server
	"metrics-server.enabled": util.ConfigVarSpec{
		Help:         "Serve /metrics while the run is in progress",
		DefaultValue: false,
		EnvVar:       EnvPrefix + "METRICS_SERVER_ENABLED",
	},
	"metrics-server.listen-address": util.ConfigVarSpec{
		Help:         "Metrics server listen address",
		DefaultValue: "127.0.0.1",
		EnvVar:       EnvPrefix + "METRICS_SERVER_LISTEN_ADDRESS",
	},
	"metrics-server.listen-port": util.ConfigVarSpec{
		Help:         "Metrics server listen port",
		DefaultValue: 9102,
		EnvVar:       EnvPrefix + "METRICS_SERVER_LISTEN_PORT",
	},

	// General
	"shutdown-timeout-seconds": util.ConfigVarSpec{
		Help:         "Time allowed to export the partial report after a shutdown signal",
		DefaultValue: 60,
		EnvVar:       EnvPrefix + "SHUTDOWN_TIMEOUT_SECONDS",
	},
	"log-level": util.ConfigVarSpec{
		Help:         "Log level (error|warn|info|debug)",
		DefaultValue: "info",
		EnvVar:       EnvPrefix + "LOG_LEVEL",
	},
}
