package util

import (
	"strings"
)

// LastNonEmptyLine returns the last line of out that is not blank, or "" if there is none.
func LastNonEmptyLine(out []byte) string {
	lines := strings.Split(string(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if len(strings.TrimSpace(line)) > 0 {
			return line
		}
	}
	return ""
}

// MB is the payload size unit used throughout the harness.
const MB = 1_000_000

// MBToBytes converts a size in MB to bytes.
func MBToBytes(sizeMB int) int64 {
	return int64(sizeMB) * MB
}
