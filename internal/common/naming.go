package common

import (
	"strconv"
	"strings"
)

// PadZero pads an integer with leading zeros to reach the specified width.
func PadZero(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// filesystemUnsafe are the characters rejected by at least one of the
// supported platforms' filesystems.
const filesystemUnsafe = `/\:*?"<>|`

// SanitizeFilename replaces characters illegal in file names and collapses
// the surrounding whitespace. The result is deterministic for a given
// input.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(filesystemUnsafe, r):
			b.WriteByte('_')
		case r < 0x20:
			// control characters
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		return "untitled"
	}
	return cleaned
}
