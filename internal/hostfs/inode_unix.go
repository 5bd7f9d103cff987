//go:build unix

package hostfs

import (
	"fmt"
	"io/fs"
	"syscall"
)

func inodeOf(info fs.FileInfo) (uint64, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("hostfs: no inode for %s", info.Name())
	}
	return uint64(st.Ino), nil
}
