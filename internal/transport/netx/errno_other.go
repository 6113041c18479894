//go:build !unix

package netx

import "errors"

var errAddrInUse = errors.New("netx: address in use")
