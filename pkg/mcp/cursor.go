package mcp

import (
	"encoding/base64"
	"strconv"
)

// Pagination cursors are opaque to clients but are simply a base64
// encoding of the integer offset, stable as long as the underlying
// list does not mutate.

func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, invalidParamsf("Invalid cursor: %s", cursor)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, invalidParamsf("Invalid cursor: %s", cursor)
	}
	return offset, nil
}

// paginate slices items at the cursor with the given page size and
// returns the page plus the next cursor ("" when the page is last).
func paginate[T any](items []T, cursor string, pageSize int) ([]T, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	offset, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if offset >= len(items) {
		return []T{}, "", nil
	}
	end := offset + pageSize
	if end >= len(items) {
		return items[offset:], "", nil
	}
	return items[offset:end], encodeCursor(end), nil
}
