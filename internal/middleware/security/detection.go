package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
}

// Detector flags requests that look like probes and resolves the real
// client IP behind trusted proxies. The API is consumed by scripts and
// curl, so detection sticks to URL patterns and skips user agents.
type Detector struct {
	metrics        *DetectionMetrics
	trustedProxies []*net.IPNet
}

// NewDetector creates a new security detector
func NewDetector() *Detector {
	return &Detector{
		metrics: &DetectionMetrics{},
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

var suspiciousPatterns = []string{
	"../", "..\\", ".env", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", ".git", ".ssh",
	"eval(", "javascript:", "<script", "union select",
	"etc/passwd", "cmd.exe",
}

// IsSuspicious analyzes the request URL for common probe patterns.
func (d *Detector) IsSuspicious(r *http.Request) bool {
	suspicious := false

	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(path, pattern) || strings.Contains(query, pattern) {
			suspicious = true
			break
		}
	}

	if len(r.URL.String()) > 2048 {
		suspicious = true
	}

	if suspicious {
		atomic.AddInt64(&d.metrics.SuspiciousRequests, 1)
	}
	return suspicious
}

// ExtractClientIP extracts the real client IP, honoring forwarded
// headers only when the direct peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil {
		return directIP
	}

	if d.isTrustedProxy(parsedDirectIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.metrics.SuspiciousRequests),
	}
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
