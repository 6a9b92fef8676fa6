package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync/atomic"

	"spendly/internal/log"
)

type DetectionMetrics struct {
	SuspiciousRequests int64
}

// Detector flags probing requests and resolves the client address behind
// trusted proxies. Proxies must be added before it serves requests.
type Detector struct {
	proxies    []netip.Prefix
	suspicious atomic.Int64
}

var (
	probeFragments = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", "etc/passwd", "cmd.exe",
		"<script", "javascript:", "eval(", "union select",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan"}
	probeMethods  = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

const (
	maxURLLength = 2048
	maxHops      = 6
)

// rules are checked in order; the first match names the reason.
var rules = []struct {
	reason string
	match  func(r *http.Request) bool
}{
	{"probe_path", func(r *http.Request) bool { return containsAny(r.URL.Path, probeFragments) }},
	{"probe_query", func(r *http.Request) bool { return containsAny(r.URL.RawQuery, probeFragments) }},
	{"scanner_agent", func(r *http.Request) bool { return containsAny(r.UserAgent(), scannerAgents) }},
	{"method", func(r *http.Request) bool { return slices.Contains(probeMethods, r.Method) }},
	{"long_url", func(r *http.Request) bool { return len(r.URL.String()) > maxURLLength }},
	{"proxy_chain", func(r *http.Request) bool {
		return len(strings.Split(r.Header.Get("X-Forwarded-For"), ",")) > maxHops
	}},
}

func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"} {
		d.proxies = append(d.proxies, netip.MustParsePrefix(cidr))
	}
	return d
}

// AddTrustedProxy lets X-Forwarded-For and X-Real-IP be honoured when the
// connection comes from cidr.
func (d *Detector) AddTrustedProxy(cidr string) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.proxies = append(d.proxies, p.Masked())
	return nil
}

func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	return d.inspect(r) != ""
}

func (d *Detector) inspect(r *http.Request) string {
	for _, rule := range rules {
		if rule.match(r) {
			d.suspicious.Add(1)
			return rule.reason
		}
	}
	return ""
}

func containsAny(s string, fragments []string) bool {
	s = strings.ToLower(s)
	return slices.ContainsFunc(fragments, func(f string) bool { return strings.Contains(s, f) })
}

// Middleware only logs; every request is passed on.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.inspect(r); reason != "" {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				log.FieldComponent, log.ComponentSecurity,
				"reason", reason,
				log.FieldClientIP, d.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP returns the peer address, or the forwarded client address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !d.trusted(peer.Unmap()) {
		return host
	}

	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
			return addr.String()
		}
	}
	return host
}

func (d *Detector) trusted(ip netip.Addr) bool {
	return slices.ContainsFunc(d.proxies, func(p netip.Prefix) bool { return p.Contains(ip) })
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{SuspiciousRequests: d.suspicious.Load()}
}
