//go:build !unix

package server

import "net"

// listenTCP falls back to the OS default backlog on platforms where the
// raw-socket path in listen.go isn't wired up.
func listenTCP(addr string, _ int) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
