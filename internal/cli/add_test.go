package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_RecordsVisit(t *testing.T) {
	store, _ := openTestStore(t)
	cmd := &AddCommand{
		URL:        "https://example.com/docs",
		Title:      "Docs",
		Engagement: 80,
		TimeSpent:  "90s",
		Query:      "go docs",
		Tabs:       4,
		Topics:     []string{"go"},
		globals:    &GlobalFlags{},
	}

	out := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), store, baseTime))
	})
	assert.Contains(t, out, "Recorded visit")
	assert.Contains(t, out, "Visits: 1")

	rec, err := store.GetRecord(context.Background(), "https://example.com/docs")
	require.NoError(t, err)
	assert.Equal(t, "Docs", rec.Title)
	require.NotNil(t, rec.Engagement)
	assert.Equal(t, 80.0, *rec.Engagement)
	assert.Equal(t, 90*time.Second, rec.TimeSpent)
	assert.Equal(t, "go docs", rec.SearchQuery)
	assert.Equal(t, 4, rec.TabCount)
	assert.Equal(t, []string{"go"}, rec.Topics)
}

func TestAdd_UnknownEngagementStaysNil(t *testing.T) {
	store, _ := openTestStore(t)
	cmd := &AddCommand{URL: "https://example.com/", Title: "Home", Engagement: -1, globals: &GlobalFlags{}}

	captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), store, baseTime))
	})

	rec, err := store.GetRecord(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Nil(t, rec.Engagement)
}

func TestAdd_JSONOutputCountsVisits(t *testing.T) {
	store, _ := openTestStore(t)
	cmd := &AddCommand{URL: "https://example.com/", Title: "Home", Engagement: -1, globals: &GlobalFlags{JSON: true}}

	captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), store, baseTime))
	})
	out := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), store, baseTime.Add(time.Hour)))
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, float64(2), got["visit_count"])
	assert.Equal(t, "example.com", got["domain"])
	assert.Equal(t, "2024-03-06T15:30:00Z", got["ts"])
}

func TestAdd_Rejects(t *testing.T) {
	cases := []struct {
		name string
		cmd  AddCommand
		want string
	}{
		{"invalid url", AddCommand{URL: "not a url", Title: "x", Engagement: -1}, "invalid URL"},
		{"excluded", AddCommand{URL: "https://chase.com/login", Title: "x", Engagement: -1}, "excluded"},
		{"engagement range", AddCommand{URL: "https://example.com/", Title: "x", Engagement: 150}, "--engagement"},
		{"time spent", AddCommand{URL: "https://example.com/", Title: "x", Engagement: -1, TimeSpent: "soon"}, "--time-spent"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, _ := openTestStore(t)
			cmd := tc.cmd
			cmd.globals = &GlobalFlags{}
			err := cmd.executeWithStore(context.Background(), store, baseTime)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
