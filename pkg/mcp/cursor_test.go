package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	offset, err := decodeCursor(encodeCursor(42))
	require.NoError(t, err)
	assert.Equal(t, 42, offset)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "!!!"},
		{name: "base64 of garbage", cursor: "Z2FyYmFnZQ=="},
		{name: "negative offset", cursor: encodeCursor(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeCursor(tt.cursor)
			require.Error(t, err)
			mcpErr, ok := err.(*MCPError)
			require.True(t, ok)
			assert.Equal(t, InvalidParams, mcpErr.Code)
		})
	}
}

func TestDecodeCursor_Empty(t *testing.T) {
	offset, err := decodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
}

// TestPaginate tests page slicing and next-cursor emission.
func TestPaginate(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6}

	t.Run("first page with more remaining", func(t *testing.T) {
		page, next, err := paginate(items, "", 3)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, page)
		require.NotEmpty(t, next)

		offset, err := decodeCursor(next)
		require.NoError(t, err)
		assert.Equal(t, 3, offset)
	})

	t.Run("last page has no cursor", func(t *testing.T) {
		page, next, err := paginate(items, encodeCursor(6), 3)
		require.NoError(t, err)
		assert.Equal(t, []int{6}, page)
		assert.Empty(t, next)
	})

	t.Run("exact boundary page has no cursor", func(t *testing.T) {
		page, next, err := paginate(items, encodeCursor(4), 3)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 5, 6}, page)
		assert.Empty(t, next)
	})

	t.Run("offset past end returns empty page", func(t *testing.T) {
		page, next, err := paginate(items, encodeCursor(100), 3)
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.Empty(t, next)
	})

	t.Run("walk all pages", func(t *testing.T) {
		var collected []int
		cursor := ""
		for {
			page, next, err := paginate(items, cursor, 2)
			require.NoError(t, err)
			collected = append(collected, page...)
			if next == "" {
				break
			}
			cursor = next
		}
		assert.Equal(t, items, collected)
	})
}
