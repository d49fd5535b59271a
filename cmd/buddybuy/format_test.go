package main

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/buddybuy/internal/model"
)

func TestParseRating(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"good", model.RatingGood, true},
		{" Neutral ", model.RatingNeutral, true},
		{"bad", model.RatingBad, true},
		{"none", model.RatingNone, true},
		{"0", model.RatingNone, true},
		{"3", model.RatingGood, true},
		{"4", 0, false},
		{"-1", 0, false},
		{"great", 0, false},
	}
	for _, tt := range tests {
		got, err := parseRating(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "1b4e28ba", shortID("1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.Equal(t, "local-6fa459ea", shortID("local-6fa459ea-ee8a-3ca4-894e-db77e160355e"))
	assert.Equal(t, "srv-1", shortID("srv-1"))
}

func TestResolveItem(t *testing.T) {
	items := []model.Item{
		{ID: "1b4e28ba-2fa1", Title: "Lamp"},
		{ID: "1b4f0000-0000", Title: "Chair"},
		{ID: "local-6fa459ea", Title: "Desk"},
	}

	item, err := resolveItem(items, "1b4e")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", item.Title)

	item, err = resolveItem(items, "local-6f")
	require.NoError(t, err)
	assert.Equal(t, "Desk", item.Title)

	_, err = resolveItem(items, "1b4")
	assert.ErrorContains(t, err, "matches 2 items")

	_, err = resolveItem(items, "ffff")
	assert.ErrorContains(t, err, "no item")
}

func TestPrintItemLine(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	printItemLine(&buf, model.Item{
		ID:         "local-6fa459ea-ee8a",
		Title:      "Desk",
		Rating:     model.RatingGood,
		ImageRef:   "file:///tmp/desk.png",
		CreatedAt:  time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		SyncStatus: model.SyncPending,
	})
	assert.Equal(t, "local-6fa459ea * Desk  good [photo]\n", buf.String())

	buf.Reset()
	printItemLine(&buf, model.Item{ID: "srv-1", Title: "Lamp", SyncStatus: model.SyncSynced})
	assert.Equal(t, "srv-1   Lamp  unrated\n", buf.String())
}

func TestReadLine(t *testing.T) {
	line, err := readLine(bufio.NewReader(bytes.NewBufferString("hunter22\r\nrest")))
	require.NoError(t, err)
	assert.Equal(t, "hunter22", line)

	line, err = readLine(bufio.NewReader(bytes.NewBufferString("no-newline")))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", line)

	_, err = readLine(bufio.NewReader(bytes.NewBufferString("\n")))
	assert.Error(t, err)

	// Consecutive prompts share a reader.
	in := bufio.NewReader(bytes.NewBufferString("old-password\nnew-password\n"))
	first, err := readLine(in)
	require.NoError(t, err)
	second, err := readLine(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-password", "new-password"}, []string{first, second})
}
