package events

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func setIfPresent(attrs map[string]string, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		attrs[key] = value
	}
}

func formatTimestamp(ts uint64) string {
	return strconv.FormatUint(ts, 10)
}
