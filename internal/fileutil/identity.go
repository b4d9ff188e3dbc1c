package fileutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Identity returns a token that changes whenever path is replaced by another
// file: inode, status-change time and size. Reusing a name for a new file,
// even one with the same inode number, yields a different token.
func Identity(path string) (string, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return fmt.Sprintf("%d-%d-%d", st.Ino, st.Ctim.Nano(), st.Size), nil
}
