package testenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerRecordsSortedAttributes(t *testing.T) {
	l := NewLogger()
	l.Warn("persist failed", "op", "update", "collection", "tasks")
	l.Debug("subscribed")

	assert.Equal(t, []string{
		"WARN persist failed collection=tasks op=update",
		"DEBUG subscribed",
	}, l.Entries())
	assert.True(t, l.Contains("WARN", "persist failed"))
	assert.False(t, l.Contains("ERROR", "persist failed"))
}
