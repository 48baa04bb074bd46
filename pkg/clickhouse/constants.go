package clickhouse

// DatabaseName is the default database holding collected records
const DatabaseName = "netlogon"

// TableNoClientSiteRecords stores one row per exported report row (MergeTree)
const TableNoClientSiteRecords = "no_client_site_records"
