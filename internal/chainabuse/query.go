package chainabuse

// getReportsQuery is the GetReports document accepted by the graphql-proxy
// endpoint. Field order and shape must match what the site ships, otherwise
// the proxy rejects the operation.
const getReportsQuery = `
query GetReports($input: ReportsInput, $after: String, $before: String, $last: Float, $first: Float) {
  reports(input: $input, after: $after, before: $before, last: $last, first: $first) {
    pageInfo {
      hasNextPage
      hasPreviousPage
      startCursor
      endCursor
      __typename
    }
    edges {
      node {
        id
        isPrivate
        createdAt
        scamCategory
        categoryDescription
        biDirectionalVoteCount
        viewerDidVote
        description
        commentsCount
        source
        checked
        reportedBy {
          id
          username
          trusted
        }
        accusedScammers {
          id
          info {
            id
            contact
            type
          }
        }
        addresses {
          id
          address
          chain
          domain
          label
        }
      }
    }
    count
    totalCount
  }
}
`

type reportsInput struct {
	Chains         []string `json:"chains"`
	ScamCategories []string `json:"scamCategories"`
	OrderBy        orderBy  `json:"orderBy"`
}

type orderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type reportsVariables struct {
	Input reportsInput `json:"input"`
	First int          `json:"first"`
	After string       `json:"after,omitempty"`
}

type reportsRequest struct {
	OperationName string           `json:"operationName"`
	Variables     reportsVariables `json:"variables"`
	Query         string           `json:"query"`
}
