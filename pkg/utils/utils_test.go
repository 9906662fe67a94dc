package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"NonHTML", ErrNonHTMLContent, "Fetch_NonHTML"},
		{"TooLarge", ErrResponseTooBig, "Fetch_TooLarge"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"EmptyBody", ErrEmptyBody, "Extraction_EmptyBody"},
		{"ExtractorPanic", ErrExtractorPanic, "Extraction_Panic"},
		{"ExtractionGeneric", ErrExtraction, "Extraction_Other"},
		{"Quota", ErrQuotaExhausted, "Classifier_Quota"},
		{"ClassifierTimeout", ErrClassifierTimeout, "Classifier_Timeout"},
		{"ClassifierMalformed", ErrClassifierMalformed, "Classifier_Malformed"},
		{"ClassifierFailed", ErrClassifierFailed, "Classifier_Failed"},
		{"ClassifierDisabled", ErrClassifierDisabled, "Classifier_Disabled"},
		{"RobotsDisallowed", ErrRobotsDisallowed, "Policy_Robots"},
		{"Budget", ErrBudgetExhausted, "Policy_Budget"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
		{"SemaphoreTimeout", ErrSemaphoreTimeout, "Resource_SemaphoreTimeout"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestSentinelFamilies(t *testing.T) {
	for _, err := range []error{ErrClientHTTPError, ErrServerHTTPError, ErrNonHTMLContent, ErrResponseTooBig} {
		if !errors.Is(err, ErrFetch) {
			t.Errorf("%v should belong to the fetch family", err)
		}
	}
	for _, err := range []error{ErrQuotaExhausted, ErrClassifierTimeout, ErrClassifierFailed, ErrClassifierMalformed} {
		if !IsClassifierDecline(err) {
			t.Errorf("%v should be a classifier decline", err)
		}
	}
	if errors.Is(ErrClassifierTimeout, ErrClassifierFailed) {
		t.Error("a timeout must stay distinguishable from a failed call")
	}
	if IsClassifierDecline(ErrFetch) {
		t.Error("fetch errors are not classifier declines")
	}
}

func TestCategorizeError_ClientHTTPCodes(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{404, "HTTP_404"},
		{403, "HTTP_403"},
		{401, "HTTP_401"},
		{429, "HTTP_429"},
		{410, "HTTP_4xx"},
	}
	for _, tt := range tests {
		err := fmt.Errorf("%w: status %d %d Status", ErrClientHTTPError, tt.code, tt.code)
		if got := CategorizeError(err); got != tt.expected {
			t.Errorf("CategorizeError(status %d) = %q, want %q", tt.code, got, tt.expected)
		}
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	err := fmt.Errorf("processing https://example.com/a: %w", ErrEmptyBody)
	if got := CategorizeError(err); got != "Extraction_EmptyBody" {
		t.Errorf("CategorizeError(wrapped) = %q, want %q", got, "Extraction_EmptyBody")
	}

	fsErr := fmt.Errorf("%w: %w", ErrFilesystem, os.ErrPermission)
	if got := CategorizeError(fsErr); got != "Filesystem_Permission" {
		t.Errorf("CategorizeError(fs permission) = %q, want %q", got, "Filesystem_Permission")
	}
}

func TestCategorizeError_ParsingErrors(t *testing.T) {
	if got := CategorizeError(fmt.Errorf("%w: bad URL", ErrParsing)); got != "Content_ParsingURL" {
		t.Errorf("got %q, want Content_ParsingURL", got)
	}
	if got := CategorizeError(fmt.Errorf("%w: bad HTML", ErrParsing)); got != "Content_ParsingHTML" {
		t.Errorf("got %q, want Content_ParsingHTML", got)
	}
	if got := CategorizeError(ErrParsing); got != "Content_ParsingOther" {
		t.Errorf("got %q, want Content_ParsingOther", got)
	}
}

func TestCategorizeError_ContextErrors(t *testing.T) {
	if got := CategorizeError(context.Canceled); got != "System_ContextCanceled" {
		t.Errorf("CategorizeError(Canceled) = %q", got)
	}
	if got := CategorizeError(context.DeadlineExceeded); got != "System_ContextDeadlineExceeded" {
		t.Errorf("CategorizeError(DeadlineExceeded) = %q", got)
	}
	semErr := fmt.Errorf("acquire semaphore: %w", context.DeadlineExceeded)
	if got := CategorizeError(semErr); got != "Resource_SemaphoreTimeout" {
		t.Errorf("CategorizeError(semaphore deadline) = %q", got)
	}
}

func TestCategorizeError_NetworkStrings(t *testing.T) {
	tests := []struct {
		msg      string
		expected string
	}{
		{"dial tcp: i/o timeout", "Network_TimeoutGeneric"},
		{"dial tcp 127.0.0.1:1: connect: connection refused", "Network_ConnectionRefused"},
		{"lookup nowhere.invalid: no such host", "Network_DNSLookup"},
		{"x509: certificate signed by unknown authority", "Network_TLS"},
		{"read: connection reset by peer", "Network_ConnectionReset"},
	}
	for _, tt := range tests {
		if got := CategorizeError(errors.New(tt.msg)); got != tt.expected {
			t.Errorf("CategorizeError(%q) = %q, want %q", tt.msg, got, tt.expected)
		}
	}
}

func TestCategorizeError_Unknown(t *testing.T) {
	if got := CategorizeError(errors.New("something odd")); got != "Unknown" {
		t.Errorf("CategorizeError(unknown) = %q, want %q", got, "Unknown")
	}
}

// --- CompileRegexPatterns Tests ---

func TestCompileRegexPatterns_ValidPatterns(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{`/news/?$`, `/tag/`, `[a-z]+`})
	if err != nil {
		t.Fatalf("CompileRegexPatterns() unexpected error: %v", err)
	}
	if len(compiled) != 3 {
		t.Errorf("CompileRegexPatterns() returned %d patterns, want 3", len(compiled))
	}
}

func TestCompileRegexPatterns_EmptyStringsSkipped(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{"valid", "", "also_valid", ""})
	if err != nil {
		t.Fatalf("CompileRegexPatterns() unexpected error: %v", err)
	}
	if len(compiled) != 2 {
		t.Errorf("CompileRegexPatterns() returned %d patterns, want 2", len(compiled))
	}
}

func TestCompileRegexPatterns_InvalidPattern(t *testing.T) {
	_, err := CompileRegexPatterns([]string{`valid`, `[invalid`})
	if err == nil {
		t.Fatal("CompileRegexPatterns() expected error for invalid pattern, got nil")
	}
	if !errors.Is(err, ErrConfigValidation) {
		t.Errorf("CompileRegexPatterns() error = %v, want wrapped ErrConfigValidation", err)
	}
}

func TestMatchesAny(t *testing.T) {
	patterns := []*regexp.Regexp{regexp.MustCompile(`/tag/`), regexp.MustCompile(`/news/?$`)}
	if !MatchesAny(patterns, "https://example.com/news/") {
		t.Error("expected /news/ to match")
	}
	if MatchesAny(patterns, "https://example.com/2025/05/story") {
		t.Error("did not expect article path to match")
	}
	if MatchesAny(nil, "anything") {
		t.Error("no patterns should never match")
	}
}

// --- CalculateStringSHA256 Tests ---

func TestCalculateStringSHA256(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"EmptyString", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"HelloWorld", "hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"SimpleText", "test", "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := CalculateStringSHA256(tt.input); result != tt.expected {
				t.Errorf("CalculateStringSHA256(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// --- WrapErrorf Tests ---

func TestWrapErrorf_NilError(t *testing.T) {
	if result := WrapErrorf(nil, "some context"); result != nil {
		t.Errorf("WrapErrorf(nil, ...) = %v, want nil", result)
	}
}

func TestWrapErrorf_WrapsError(t *testing.T) {
	original := errors.New("original error")
	wrapped := WrapErrorf(original, "context %s", "value")

	if !errors.Is(wrapped, original) {
		t.Error("WrapErrorf() result should wrap original error")
	}
	if expected := "context value: original error"; wrapped.Error() != expected {
		t.Errorf("WrapErrorf() message = %q, want %q", wrapped.Error(), expected)
	}
}
