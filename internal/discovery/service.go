package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service is a fieldsync server found on the local network.
type Service struct {
	// Instance is the advertised instance name (e.g., "fieldsync on studio")
	Instance string

	// Hostname is the mDNS hostname (e.g., "studio.local.")
	Hostname string

	// IP is the preferred address, IPv4 when one was advertised
	IP string

	// Port is the TCP port the server listens on
	Port int

	// Path is the WebSocket endpoint path, "/ws" unless advertised otherwise
	Path string

	// TLS reports whether the server expects wss://
	TLS bool

	// Version is the server build version, empty if not advertised
	Version string

	// Metadata contains all mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the service was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the service
func (s *Service) String() string {
	return fmt.Sprintf("%s (%s) at %s", s.Instance, s.Hostname, s.URL())
}

// URL returns the WebSocket URL clients should dial.
func (s *Service) URL() string {
	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	p := s.Path
	if p == "" {
		p = DefaultPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return scheme + "://" + net.JoinHostPort(s.IP, strconv.Itoa(s.Port)) + p
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
