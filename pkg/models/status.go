package models

// ArticleStatus represents the processing status of an article URL in the state store
type ArticleStatus string

const (
	ArticleStatusUnset     ArticleStatus = ""          // Zero value = unset/unknown
	ArticleStatusPending   ArticleStatus = "pending"   // Article queued but not yet extracted
	ArticleStatusExtracted ArticleStatus = "extracted" // Article extracted and emitted to the sink
	ArticleStatusFailure   ArticleStatus = "failure"   // Fetch or extraction failed
	ArticleStatusNotFound  ArticleStatus = "not_found" // Article not in database
	ArticleStatusDBError   ArticleStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s ArticleStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a value that may be persisted
func (s ArticleStatus) IsValid() bool {
	switch s {
	case ArticleStatusPending, ArticleStatusExtracted, ArticleStatusFailure:
		return true
	}
	return false
}

// IsTerminal reports whether a resumed run can skip the article
func (s ArticleStatus) IsTerminal() bool {
	return s == ArticleStatusExtracted
}
