package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	// Fetch family: a single URL could not be retrieved. Never retried.
	ErrFetch            = errors.New("fetch error")
	ErrClientHTTPError  = fmt.Errorf("%w: client HTTP error (4xx)", ErrFetch)
	ErrServerHTTPError  = fmt.Errorf("%w: server HTTP error (5xx)", ErrFetch)
	ErrOtherHTTPError   = fmt.Errorf("%w: other HTTP error (non-2xx)", ErrFetch)
	ErrNonHTMLContent   = fmt.Errorf("%w: non-HTML content type", ErrFetch)
	ErrResponseTooBig   = fmt.Errorf("%w: response body exceeds size limit", ErrFetch)
	ErrRequestCreation  = fmt.Errorf("%w: failed to create HTTP request", ErrFetch)
	ErrResponseBodyRead = fmt.Errorf("%w: failed to read response body", ErrFetch)

	// Extraction family: an article page had no usable structure.
	ErrExtraction     = errors.New("extraction error")
	ErrEmptyBody      = fmt.Errorf("%w: no article paragraphs found", ErrExtraction)
	ErrExtractorPanic = fmt.Errorf("%w: extractor panicked", ErrExtraction)

	// Classifier family: the gate declined to produce a selection.
	ErrClassifier          = errors.New("classifier error")
	ErrQuotaExhausted      = fmt.Errorf("%w: daily quota exhausted", ErrClassifier)
	ErrClassifierTimeout   = fmt.Errorf("%w: call timed out", ErrClassifier)
	ErrClassifierFailed    = fmt.Errorf("%w: call failed", ErrClassifier)
	ErrClassifierMalformed = fmt.Errorf("%w: reply contained no usable section numbers", ErrClassifier)
	ErrClassifierDisabled  = fmt.Errorf("%w: classifier disabled", ErrClassifier)

	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrBudgetExhausted  = errors.New("crawl target budget exhausted")
	ErrParsing          = errors.New("parsing error")    // Wraps specific parsing error (HTML, URL)
	ErrFilesystem       = errors.New("filesystem error") // Wraps os errors
	ErrDatabase         = errors.New("database error")   // Wraps badger and mongo errors
	ErrSemaphoreTimeout = errors.New("timeout acquiring semaphore")
	ErrConfigValidation = errors.New("configuration validation error")
)

// WrapErrorf prefixes err with a formatted message, preserving errors.Is
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsClassifierDecline reports whether err means "no selection" from the classifier gate
func IsClassifierDecline(err error) bool {
	return errors.Is(err, ErrClassifier)
}

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 401 ") {
			return "HTTP_401"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrNonHTMLContent):
		return "Fetch_NonHTML"
	case errors.Is(err, ErrResponseTooBig):
		return "Fetch_TooLarge"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrEmptyBody):
		return "Extraction_EmptyBody"
	case errors.Is(err, ErrExtractorPanic):
		return "Extraction_Panic"
	case errors.Is(err, ErrExtraction):
		return "Extraction_Other"
	case errors.Is(err, ErrQuotaExhausted):
		return "Classifier_Quota"
	case errors.Is(err, ErrClassifierTimeout):
		return "Classifier_Timeout"
	case errors.Is(err, ErrClassifierMalformed):
		return "Classifier_Malformed"
	case errors.Is(err, ErrClassifierDisabled):
		return "Classifier_Disabled"
	case errors.Is(err, ErrClassifierFailed):
		return "Classifier_Failed"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrBudgetExhausted):
		return "Policy_Budget"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrSemaphoreTimeout):
		return "Resource_SemaphoreTimeout"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if strings.Contains(err.Error(), "semaphore") {
			return "Resource_SemaphoreTimeout"
		}
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
