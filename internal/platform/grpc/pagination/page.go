// Package pagination normalizes list request paging for the gRPC API.
package pagination

import (
	"fmt"
	"strconv"
	"strings"
)

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	return max(pageSize, 1)
}

// CursorToken encodes the id of the last row of a page. Listings resume
// strictly after it.
func CursorToken(lastID uint64) string {
	return strconv.FormatUint(lastID, 10)
}

// ParseCursorToken decodes a token from CursorToken; empty means the first page.
func ParseCursorToken(token string) (uint64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(token, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid page token %q", token)
	}
	return id, nil
}
