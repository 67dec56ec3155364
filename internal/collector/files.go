package collector

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultFileNrPath = "/proc/sys/fs/file-nr"

// fileHandles reads the number of used file handles and the system limit
// from a file-nr formatted file: "<allocated> <free> <max>".
func fileHandles(path string) (used, limit int64, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	return parseFileNr(string(raw))
}

func parseFileNr(raw string) (used, limit int64, err error) {
	fields := strings.Fields(raw)
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("unexpected file-nr format: %q", raw)
	}
	values := make([]int64, 3)
	for i, f := range fields {
		values[i], err = strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse file-nr field %d: %w", i, err)
		}
	}
	return values[0] - values[1], values[2], nil
}
