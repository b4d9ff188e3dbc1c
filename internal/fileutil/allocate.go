package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxAllocationAttempts bounds the suffixes Allocate tries.
const MaxAllocationAttempts = 1000

// ErrAllocationExhausted is returned when no free name was found.
var ErrAllocationExhausted = errors.New("unique name allocation exhausted")

// Allocate returns a path inside dir that does not currently exist. The
// desired name is used as-is when free; otherwise base_2.ext, base_3.ext, ...
// are tried. It never creates anything.
func Allocate(dir, desiredName string) (string, error) {
	if desiredName == "" || desiredName != filepath.Base(desiredName) || desiredName == "." || desiredName == ".." {
		return "", fmt.Errorf("allocate: invalid name %q", desiredName)
	}

	candidate := filepath.Join(dir, desiredName)
	free, err := available(candidate)
	if err != nil {
		return "", err
	}
	if free {
		return candidate, nil
	}

	ext := filepath.Ext(desiredName)
	base := strings.TrimSuffix(desiredName, ext)
	for n := 2; n <= MaxAllocationAttempts; n++ {
		candidate = filepath.Join(dir, base+"_"+strconv.Itoa(n)+ext)
		free, err := available(candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("allocate %s in %s: %w", desiredName, dir, ErrAllocationExhausted)
}

func available(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		return true, nil
	default:
		return false, fmt.Errorf("allocate: stat %s: %w", path, err)
	}
}
