package service

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CheckRemoteMediaURL rejects URLs a server-side fetch must never follow:
// anything that is not plain https, carries credentials, or points at
// localhost, internal-suffix hostnames, or private/loopback/link-local
// addresses. The hostname must also match the operator's allow-list,
// exactly or as a suffix.
func CheckRemoteMediaURL(raw string, allowedHosts []string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("url could not be parsed")
	}
	if u.Scheme != "https" {
		return errors.New("url scheme must be https")
	}
	if u.User != nil {
		return errors.New("url must not embed credentials")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New("url has no hostname")
	}
	if host == "localhost" {
		return errors.New("url must not target localhost")
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return errors.New("url must not target an internal hostname")
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return errors.New("url must not target a private or local address")
		}
	}

	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not on the allowed media host list", host)
}
