//go:build !linux && !darwin && !freebsd

package queue

import "errors"

func freeDiskBytes(string) (uint64, error) {
	return 0, errors.New("free disk space unavailable on this platform")
}
