package extractor

import "fmt"

type ExtractionErrorCause string

const (
	CauseUnparsableMarkup    ExtractionErrorCause = "unparsable markup"
	CauseRegionMissing       ExtractionErrorCause = "region missing"
	CauseAuthorSeparator     ExtractionErrorCause = "author separator missing"
	CauseDescriptionTooShort ExtractionErrorCause = "description too short"
)

// ExtractionError reports why a search result page could not be turned into a record.
type ExtractionError struct {
	Cause  ExtractionErrorCause
	Region string
	Detail string
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction error: %s", e.Cause)
	if e.Region != "" {
		msg += fmt.Sprintf(" (%s)", e.Region)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any *ExtractionError with the same cause, so callers can test
// errors.Is(err, &ExtractionError{Cause: CauseRegionMissing}).
func (e *ExtractionError) Is(target error) bool {
	t, ok := target.(*ExtractionError)
	if !ok {
		return false
	}
	return t.Cause == "" || t.Cause == e.Cause
}
