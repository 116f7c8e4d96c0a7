//go:build linux || darwin || freebsd

package monitor

import (
	"errors"

	"golang.org/x/sys/unix"
)

func freePercent(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	if st.Blocks == 0 {
		return 0, errors.New("filesystem reports no blocks")
	}
	return float64(st.Bavail) * 100 / float64(st.Blocks), nil
}
