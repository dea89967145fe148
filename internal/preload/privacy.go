package preload

import (
	"net/url"
	"strings"
)

// Denylist holds domains that are never warmed. A listed domain also covers
// its subdomains.
type Denylist struct {
	domains map[string]struct{}
}

// NewDenylist normalizes domains into a Denylist.
func NewDenylist(domains []string) Denylist {
	d := Denylist{domains: make(map[string]struct{}, len(domains))}
	for _, dom := range domains {
		dom = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(dom)), ".")
		if dom != "" {
			d.domains[dom] = struct{}{}
		}
	}
	return d
}

// Blocks reports whether host or any parent domain is listed.
func (d Denylist) Blocks(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for host != "" {
		if _, ok := d.domains[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
	return false
}

// warmableHost returns the lowercased host of an http(s) URL, or "" when the
// URL must not be probed.
func warmableHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
