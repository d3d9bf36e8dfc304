package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "12345", PerformedAt: "2026-04-02T12:00:00Z"})
	require.NoError(t, err)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "12345", decoded.ID)
	assert.Equal(t, "2026-04-02T12:00:00Z", decoded.PerformedAt)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64!!")
	assert.Error(t, err)
}

type row struct{ id int }

func rows(n int) []*row {
	out := make([]*row, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &row{id: i})
	}
	return out
}

func TestBuildCursorPageInfo(t *testing.T) {
	extract := func(r *row) string { return strconv.Itoa(r.id) }

	info := BuildCursorPageInfo(rows(0), 10, extract)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	info = BuildCursorPageInfo(rows(10), 10, extract)
	assert.False(t, info.HasMore, "a full page with no extra row is the last page")
	assert.Empty(t, info.NextPageToken)

	info = BuildCursorPageInfo(rows(11), 10, extract)
	assert.True(t, info.HasMore)
	assert.Equal(t, "9", info.NextPageToken, "the cursor points at the last row of the page, not the extra row")
}
