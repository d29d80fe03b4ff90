//go:build !linux

package transport

import (
	"errors"
	"os"
	"syscall"
)

func listenControl(network, address string, c syscall.RawConn) error { return nil }

func classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, syscall.EADDRINUSE):
		return KindAddressInUse
	case errors.Is(err, os.ErrPermission):
		return KindPermissionDenied
	default:
		return KindUnknown
	}
}
