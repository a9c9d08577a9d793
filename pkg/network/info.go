package network

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// UnknownIP is reported when an address cannot be determined
	UnknownIP = "0.0.0.0"

	// DefaultWANLookupURL answers with the caller's public address
	DefaultWANLookupURL = "http://icanhazip.com"
)

// Info describes how this node is addressed on the network
type Info struct {
	Hostname string
	FQDN     string
	LANIP    string
	WANIP    string
}

// Options controls address discovery
type Options struct {
	// WANLookupURL is queried for the public address. Empty disables the
	// lookup.
	WANLookupURL string
	Timeout      time.Duration

	// Overrides, mostly for tests and nodes with odd routing
	Hostname string
	FQDN     string
	LANIP    string
	WANIP    string
}

// Discover gathers the node's names and addresses. Lookups that fail fall
// back to the hostname or UnknownIP rather than returning an error.
func Discover(ctx context.Context, opts Options) *Info {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	info := &Info{
		Hostname: opts.Hostname,
		FQDN:     opts.FQDN,
		LANIP:    opts.LANIP,
		WANIP:    opts.WANIP,
	}

	if info.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			info.Hostname = h
		} else {
			info.Hostname = "localhost"
		}
	}
	if info.LANIP == "" {
		info.LANIP = localIP()
	}
	if info.FQDN == "" {
		info.FQDN = lookupFQDN(ctx, info.Hostname, info.LANIP)
	}
	if info.WANIP == "" {
		info.WANIP = UnknownIP
		if opts.WANLookupURL != "" {
			info.WANIP = publicIP(ctx, opts.WANLookupURL, opts.Timeout)
		}
	}
	return info
}

// Identity is the name this node announces itself with
func (i *Info) Identity() string {
	if i.FQDN != "" {
		return i.FQDN
	}
	return i.Hostname
}

// IsOwn reports whether host refers to this node. It accepts any of the
// node's names or addresses, and "name@addr" pairs where either side does.
func (i *Info) IsOwn(host string) bool {
	if host == "" {
		return false
	}
	if name, addr, ok := strings.Cut(host, "@"); ok {
		return i.IsOwn(name) || i.IsOwn(addr)
	}

	host = strings.TrimSuffix(host, ".")
	for _, own := range []string{i.Hostname, i.FQDN, i.LANIP, i.WANIP} {
		if own != "" && own != UnknownIP && strings.EqualFold(host, own) {
			return true
		}
	}
	return false
}

// localIP returns the address of the interface used for outbound traffic.
// Dialing UDP sends nothing; it only selects a route.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return UnknownIP
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return UnknownIP
}

func lookupFQDN(ctx context.Context, hostname, ip string) string {
	var r net.Resolver

	if cname, err := r.LookupCNAME(ctx, hostname); err == nil && cname != "" {
		if name := strings.TrimSuffix(cname, "."); strings.Contains(name, ".") {
			return name
		}
	}
	if ip != UnknownIP {
		if names, err := r.LookupAddr(ctx, ip); err == nil && len(names) > 0 {
			return strings.TrimSuffix(names[0], ".")
		}
	}
	return hostname
}

func publicIP(ctx context.Context, url string, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return UnknownIP
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return UnknownIP
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UnknownIP
	}

	scanner := bufio.NewScanner(resp.Body)
	if !scanner.Scan() {
		return UnknownIP
	}
	ip := strings.TrimSpace(scanner.Text())
	if net.ParseIP(ip) == nil {
		return UnknownIP
	}
	return ip
}
