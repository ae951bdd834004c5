//go:build !unix

package engine

import "net"

// Listen falls back to net.Listen, the backlog is left to the runtime here
func Listen(addr string, backlog int) (net.Listener, error) {
	return net.Listen("tcp4", addr)
}
