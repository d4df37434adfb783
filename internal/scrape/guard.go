package scrape

import (
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"

	"github.com/sells-group/manuid/internal/resilience"
)

// DomainAllowed reports whether hostname matches the allowlist, either
// exactly or as a subdomain of an allowed entry. An empty allowlist
// denies everything.
func DomainAllowed(hostname string, allowlist []string) bool {
	host := strings.ToLower(hostname)
	for _, entry := range allowlist {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// isForbiddenIP reports whether ip must not be scraped: loopback,
// private, link-local, multicast, and unspecified addresses are all
// blocked to prevent SSRF against internal services.
func isForbiddenIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

// checkPublicHostname resolves hostname and rejects it when any resolved
// address is private or local. Errors are permanent: a blocked target
// must not be retried.
func checkPublicHostname(hostname string) error {
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return resilience.NewPermanentError(eris.Wrapf(err, "scrape: resolve %s", hostname))
	}
	for _, ip := range ips {
		if isForbiddenIP(ip) {
			return resilience.NewPermanentError(
				eris.Errorf("scrape: %s resolves to a private or local address", hostname))
		}
	}
	return nil
}

// guardDial is a dialer Control hook that re-checks the address actually
// being connected to. This closes the DNS rebinding gap between the
// pre-flight resolution check and the connection.
func guardDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return eris.Wrapf(err, "scrape: split dial address %s", address)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return eris.Errorf("scrape: dial address %s is not an IP", address)
	}
	if isForbiddenIP(ip) {
		return eris.Errorf("scrape: dialing private or local address %s blocked", address)
	}
	return nil
}
