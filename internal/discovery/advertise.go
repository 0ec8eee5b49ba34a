package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

// Announcement describes a server to advertise.
type Announcement struct {
	Instance string
	Port     int
	Path     string
	TLS      bool
	Version  string
}

// TXT returns the TXT records for the announcement.
func (a Announcement) TXT() []string {
	path := a.Path
	if path == "" {
		path = DefaultPath
	}
	tls := "0"
	if a.TLS {
		tls = "1"
	}
	txt := []string{txtPath + "=" + path, txtTLS + "=" + tls}
	if a.Version != "" {
		txt = append(txt, txtVersion+"="+a.Version)
	}
	return txt
}

// Advertiser keeps a service registered until Shutdown is called.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the announcement on all multicast interfaces.
func Advertise(a Announcement) (*Advertiser, error) {
	if a.Instance == "" {
		return nil, fmt.Errorf("mDNS instance name is required")
	}
	if a.Port <= 0 || a.Port > 65535 {
		return nil, fmt.Errorf("invalid port for mDNS advertisement: %d", a.Port)
	}

	server, err := zeroconf.Register(a.Instance, ServiceType, ServiceDomain, a.Port, a.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement. It is safe to call on a nil Advertiser.
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}
