//go:build unix

package server

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// listenTCP binds a TCP listener with an explicit accept backlog, rather
// than the OS-default SOMAXCONN that net.Listen applies. The fixed
// topology here (one peer, fifteen sensors) never needs a deep backlog;
// this exists to honor the original fabric's SERVER_BACKLOG constant
// (SPEC_FULL.md §11) instead of silently dropping it. The standard
// library does not expose Listen's backlog parameter, so this goes
// through raw socket/bind/listen and wraps the result back into a
// *net.TCPListener via net.FileListener.
func listenTCP(addr string, backlog int) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	var sa syscall.SockaddrInet4
	sa.Port = tcpAddr.Port
	if ip := tcpAddr.IP.To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}
	if err := syscall.Bind(fd, &sa); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("listen %s (backlog %d): %w", addr, backlog, err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp-backlog-%d:%s", backlog, addr))
	defer f.Close()
	l, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("FileListener: %w", err)
	}
	return l, nil
}
