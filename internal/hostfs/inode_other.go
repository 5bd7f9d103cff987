//go:build !unix

package hostfs

import (
	"fmt"
	"io/fs"
)

func inodeOf(info fs.FileInfo) (uint64, error) {
	return 0, fmt.Errorf("hostfs: inode numbers are not available on this platform (%s)", info.Name())
}
