package discovery

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// mDNS naming.
const (
	ServiceType = "_webthing._tcp"
	Domain      = "local."

	// MaxInstanceNameLen is the DNS label limit for the instance name.
	MaxInstanceNameLen = 63

	defaultInstance = "meterthing"
)

// Config describes what to advertise.
type Config struct {
	// Instance is the service instance name, usually the Thing title.
	Instance string

	// Port is the HTTP port of the Web Thing server.
	Port int

	// Path is the Thing description path. Default: "/".
	Path string

	// TLS marks the server as HTTPS-only.
	TLS bool

	// Interface restricts advertisement to one network interface. Empty
	// means all multicast interfaces.
	Interface string
}

// server is the part of *zeroconf.Server the advertiser uses.
type server interface {
	Shutdown()
}

// registerFunc matches zeroconf.Register.
type registerFunc func(instance, service, domain string, port int, text []string,
	ifaces []net.Interface, opts ...zeroconf.ServerOption) (server, error)

func zeroconfRegister(instance, service, domain string, port int, text []string,
	ifaces []net.Interface, opts ...zeroconf.ServerOption) (server, error) {
	return zeroconf.Register(instance, service, domain, port, text, ifaces, opts...)
}

// Advertiser owns one mDNS registration.
//
// Thread Safety: Start and Close may be called from different goroutines.
type Advertiser struct {
	cfg      Config
	register registerFunc

	mu     sync.Mutex
	server server
}

// NewAdvertiser validates cfg and returns an idle advertiser.
func NewAdvertiser(cfg Config) (*Advertiser, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Port)
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Advertiser{cfg: cfg, register: zeroconfRegister}, nil
}

// Start registers the service.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return ErrAlreadyAdvertising
	}

	ifaces, err := a.interfaces()
	if err != nil {
		return err
	}

	srv, err := a.register(a.InstanceName(), ServiceType, Domain, a.cfg.Port, a.TXT(), ifaces)
	if err != nil {
		return fmt.Errorf("registering %s: %w", ServiceType, err)
	}
	a.server = srv
	return nil
}

// Close withdraws the registration. Safe to call when not started.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

// InstanceName returns the advertised instance name, trimmed to one DNS
// label.
func (a *Advertiser) InstanceName() string {
	name := strings.TrimSpace(a.cfg.Instance)
	if name == "" {
		name = defaultInstance
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// TXT returns the TXT records.
func (a *Advertiser) TXT() []string {
	txt := []string{"path=" + a.cfg.Path}
	if a.cfg.TLS {
		txt = append(txt, "tls=1")
	}
	return txt
}

// interfaces returns the configured interface, or nil for all of them.
func (a *Advertiser) interfaces() ([]net.Interface, error) {
	if a.cfg.Interface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(a.cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", a.cfg.Interface, err)
	}
	return []net.Interface{*iface}, nil
}
