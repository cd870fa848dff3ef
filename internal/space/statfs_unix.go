//go:build unix

package space

import "golang.org/x/sys/unix"

const statfsSupported = true

// availableBytes reports the space available to unprivileged callers on
// the filesystem containing dir.
func availableBytes(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
