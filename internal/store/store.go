// Package store defines the persistence interface for normalized abuse
// reports. By using an interface, we decouple the pipeline from a specific
// database implementation, allowing a real Postgres store in production and
// an in-memory store in tests and local development.
package store

import "context"

// Report is one row in the reports table. CreatedAt keeps the upstream
// string form; the API already serves RFC3339 and nothing here does date math.
type Report struct {
	ID                     string `db:"id"`
	IsPrivate              bool   `db:"is_private"`
	CreatedAt              string `db:"created_at"`
	ScamCategory           string `db:"scam_category"`
	CategoryDescription    string `db:"category_description"`
	BiDirectionalVoteCount int    `db:"bi_directional_vote_count"`
	ViewerDidVote          bool   `db:"viewer_did_vote"`
	Description            string `db:"description"`
	CommentsCount          int    `db:"comments_count"`
	Source                 string `db:"source"`
	Checked                bool   `db:"checked"`
	ReportedByID           string `db:"reported_by_id"`
	ReportedByUsername     string `db:"reported_by_username"`
	ReportedByTrusted      bool   `db:"reported_by_trusted"`
	Chain                  string `db:"chain"`
}

// ReportAddress is one row in the report_addresses table.
type ReportAddress struct {
	ID       string `db:"id"`
	ReportID string `db:"report_id"`
	Address  string `db:"address"`
	Chain    string `db:"chain"`
}

// UnifiedAddress is one row in the shared unified_addresses table consumed by
// downstream screening tools.
type UnifiedAddress struct {
	Address     string `db:"address"`
	Type        string `db:"type"`
	AddressName string `db:"address_name"`
	Source      string `db:"source"`
}

// Counts carries live row counts for the status endpoint.
type Counts struct {
	Reports   int64 `json:"reports"`
	Addresses int64 `json:"addresses"`
}

// Store is the common interface for the report database.
type Store interface {
	// UpsertReport writes a report together with its address rows in one
	// transaction. Address rows are written parent-first so the FK always
	// holds. It reports whether the report row was newly created.
	UpsertReport(ctx context.Context, rep Report, addrs []ReportAddress, unified []UnifiedAddress) (bool, error)

	// Counts returns live row counts for reports and report_addresses.
	Counts(ctx context.Context) (Counts, error)

	// ClearReports removes all report and address rows, children first.
	ClearReports(ctx context.Context) error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close()
}
