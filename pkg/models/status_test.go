package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArticleStatus_String(t *testing.T) {
	tests := []struct {
		status ArticleStatus
		want   string
	}{
		{ArticleStatusUnset, "unset"},
		{ArticleStatusPending, "pending"},
		{ArticleStatusExtracted, "extracted"},
		{ArticleStatusFailure, "failure"},
		{ArticleStatusNotFound, "not_found"},
		{ArticleStatusDBError, "db_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestArticleStatus_IsValid(t *testing.T) {
	tests := []struct {
		status ArticleStatus
		want   bool
	}{
		{ArticleStatusPending, true},
		{ArticleStatusExtracted, true},
		{ArticleStatusFailure, true},
		{ArticleStatusUnset, false},
		{ArticleStatusNotFound, false},
		{ArticleStatusDBError, false},
		{ArticleStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "ArticleStatus(%q).IsValid()", string(tt.status))
	}
}

func TestArticleStatus_IsTerminal(t *testing.T) {
	assert.True(t, ArticleStatusExtracted.IsTerminal())
	assert.False(t, ArticleStatusFailure.IsTerminal())
	assert.False(t, ArticleStatusPending.IsTerminal())
}
