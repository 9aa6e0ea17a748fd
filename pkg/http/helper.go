package http

import (
	"net"
	"net/http"
	"strconv"
)

func itoa(v int) string {
	return strconv.Itoa(v)
}

// ClientIP returns the host part of r.RemoteAddr, or RemoteAddr itself when it carries no port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
