package biz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrdering(t *testing.T) {
	tests := []struct {
		in      string
		want    Ordering
		wantErr bool
	}{
		{in: "", want: DefaultOrdering},
		{in: "size", want: Ordering{Field: OrderSize}},
		{in: "-size", want: Ordering{Field: OrderSize, Desc: true}},
		{in: " original_filename ", want: Ordering{Field: OrderOriginalFilename}},
		{in: "-uploaded_at", want: Ordering{Field: OrderUploadedAt, Desc: true}},
		{in: "content_hash", wantErr: true},
		{in: "-", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrdering(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListQuery_Validate(t *testing.T) {
	q := &ListQuery{Predicates: []Predicate{FilenameContains("rep"), DuplicateIs(false)}}
	require.NoError(t, q.Validate())
	assert.Equal(t, DefaultOrdering, q.Order)

	bad := []*ListQuery{
		{Predicates: []Predicate{FilenameContains("  ")}},
		{Predicates: []Predicate{SizeAtLeast(-1)}},
		{Predicates: []Predicate{UploadedAfter(time.Time{})}},
		{Predicates: []Predicate{{Kind: 99}}},
		{Order: Ordering{Field: "content_hash"}},
	}
	for _, q := range bad {
		assert.ErrorIs(t, q.Validate(), ErrInvalidInput)
	}
}

func TestDateBuckets(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	startOfDay := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	b := DateBuckets(now)
	require.Len(t, b, 4)

	assert.Equal(t, "today", b[0].Label)
	assert.Equal(t, startOfDay, b[0].From)
	assert.True(t, b[0].To.IsZero())

	assert.Equal(t, now.AddDate(0, 0, -7), b[1].From)
	assert.Equal(t, startOfDay, b[1].To)

	assert.Equal(t, now.AddDate(0, 0, -30), b[2].From)
	assert.Equal(t, b[1].From, b[2].To)

	assert.True(t, b[3].From.IsZero())
	assert.Equal(t, b[2].From, b[3].To)
}

func TestStatsSnapshot_SavedPercentage(t *testing.T) {
	assert.Equal(t, 0.0, (&StatsSnapshot{}).SavedPercentage())
	assert.Equal(t, 50.0, (&StatsSnapshot{TotalStorageUsed: 10000, TotalStorageSaved: 10000}).SavedPercentage())
	assert.Equal(t, 33.33, (&StatsSnapshot{TotalStorageUsed: 2, TotalStorageSaved: 1}).RoundedSavedPercentage())
}

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "report.pdf", want: "report.pdf"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\Users\me\photo.png`, want: "photo.png"},
		{in: "  ", wantErr: true},
		{in: "..", wantErr: true},
		{in: "dir/", want: "dir"},
	}

	for _, tt := range tests {
		got, err := cleanFilename(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidInput, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
