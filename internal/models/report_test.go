package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorDigest(t *testing.T) {
	assert.Equal(t, "", ErrorDigest(nil))

	digest := ErrorDigest([]string{"one", "two"})
	assert.Equal(t, "2 error(s) occurred:\n- one\n- two", digest)

	many := ErrorDigest([]string{"1", "2", "3", "4", "5", "6", "7", "8"})
	assert.Equal(t, 5, strings.Count(many, "\n- ")-1)
	assert.True(t, strings.HasSuffix(many, "\n- ... and 3 more."))
}

func TestRunReport_Text(t *testing.T) {
	r := &RunReport{RunID: "abc", Platform: "reddit", Status: RunNothingNew, TargetPartition: "Analyzed_Reddit", Synced: 2}
	r.AddError(errors.New("subreddit golang: 503"))
	r.AddError(nil)

	text := r.Text()
	assert.True(t, strings.HasPrefix(text, "ℹ️ Analyzer (reddit) finished: nothing new to process"))
	assert.Contains(t, text, "Synced to Analyzed_Reddit: 2")
	assert.Contains(t, text, "- subreddit golang: 503")
	assert.Len(t, r.Errors, 1)
}
