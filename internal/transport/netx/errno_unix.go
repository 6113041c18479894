//go:build unix

package netx

import "syscall"

var errAddrInUse error = syscall.EADDRINUSE
