package chainabuse

// PageInfo carries relay-style pagination cursors for the reports connection.
type PageInfo struct {
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	StartCursor     string `json:"startCursor"`
	EndCursor       string `json:"endCursor"`
}

// Reporter identifies the account that filed a report.
type Reporter struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Trusted  bool   `json:"trusted"`
}

// Address is one accused address attached to a report.
type Address struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Chain   string `json:"chain"`
	Domain  string `json:"domain"`
	Label   string `json:"label"`
}

// Report is a single abuse report node.
type Report struct {
	ID                     string    `json:"id"`
	IsPrivate              bool      `json:"isPrivate"`
	CreatedAt              string    `json:"createdAt"`
	ScamCategory           string    `json:"scamCategory"`
	CategoryDescription    string    `json:"categoryDescription"`
	BiDirectionalVoteCount int       `json:"biDirectionalVoteCount"`
	ViewerDidVote          bool      `json:"viewerDidVote"`
	Description            string    `json:"description"`
	CommentsCount          int       `json:"commentsCount"`
	Source                 string    `json:"source"`
	Checked                bool      `json:"checked"`
	ReportedBy             *Reporter `json:"reportedBy"`
	Addresses              []Address `json:"addresses"`
}

// Trusted reports whether the report was filed by a trusted account. A
// missing reportedBy block counts as untrusted.
func (r Report) Trusted() bool {
	return r.ReportedBy != nil && r.ReportedBy.Trusted
}

// ReportEdge wraps a node in the connection.
type ReportEdge struct {
	Node Report `json:"node"`
}

// ReportsPage is one decoded page of the reports connection, together with
// the raw response body for archival.
type ReportsPage struct {
	PageInfo   PageInfo
	Edges      []ReportEdge
	Count      int
	TotalCount int
	Raw        []byte
}

type reportsConnection struct {
	PageInfo   PageInfo     `json:"pageInfo"`
	Edges      []ReportEdge `json:"edges"`
	Count      int          `json:"count"`
	TotalCount int          `json:"totalCount"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type reportsResponse struct {
	Data *struct {
		Reports *reportsConnection `json:"reports"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}
