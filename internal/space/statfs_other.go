//go:build !unix

package space

import "errors"

const statfsSupported = false

func availableBytes(string) (int64, error) {
	return 0, errors.New("statfs not supported on this platform")
}
