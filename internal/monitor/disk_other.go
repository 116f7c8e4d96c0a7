//go:build !(linux || darwin || freebsd)

package monitor

import "errors"

func freePercent(string) (float64, error) {
	return 0, errors.ErrUnsupported
}
