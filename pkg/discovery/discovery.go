// Package discovery finds candidate amplifier targets on the LAN via
// mDNS using github.com/brutella/dnssd's browse side, applying a
// name/TXT-record acceptance heuristic and deduping by
// (address, port, base_path). SSDP/UPnP is not supported (see DESIGN.md).
package discovery

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brutella/dnssd"

	"github.com/corvidae/cecbridge/pkg/config"
)

// DefaultServiceType is the mDNS service type amplifier IP-control
// surfaces advertise themselves under.
const DefaultServiceType = "_http._tcp.local."

// Target is one discovered candidate, already normalized to the shape
// pkg/config.Target expects.
type Target struct {
	Name     string
	Address  string
	Port     int
	BasePath string
}

// Discover browses the LAN for timeout and returns every service that
// looks like an amplifier's IP-control endpoint, deduplicated by
// (address, port, base_path). serviceType defaults to DefaultServiceType
// when empty.
func Discover(ctx context.Context, serviceType string, timeout time.Duration) ([]Target, error) {
	if serviceType == "" {
		serviceType = DefaultServiceType
	}

	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	uniq := make(map[string]Target)

	addFn := func(entry dnssd.BrowseEntry) {
		addr := firstIPv4(entry.IPs)
		if addr == "" {
			return
		}
		txtPath := entry.Text["path"]
		if !looksLikeAmplifier(entry.Name, txtPath) {
			return
		}
		t := Target{
			Name:     entry.Name,
			Address:  addr,
			Port:     entry.Port,
			BasePath: config.NormalizeBasePath(txtPath),
		}
		key := t.Address + "|" + strconv.Itoa(t.Port) + "|" + t.BasePath

		mu.Lock()
		uniq[key] = t
		mu.Unlock()
	}
	rmvFn := func(dnssd.BrowseEntry) {}

	err := dnssd.LookupType(lookupCtx, serviceType, addFn, rmvFn)
	if err != nil && lookupCtx.Err() == nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Target, 0, len(uniq))
	for _, t := range uniq {
		out = append(out, t)
	}
	return out, nil
}

// looksLikeAmplifier is the original's _is_likely_devialet heuristic,
// generalized to a vendor-agnostic name/TXT-record match: the service
// name mentions a known amplifier product line, or its TXT "path" record
// mentions "ipcontrol".
func looksLikeAmplifier(name, txtPath string) bool {
	n := strings.ToLower(name)
	for _, needle := range []string{"devialet", "phantom", "expert", "amp", "soundbar"} {
		if strings.Contains(n, needle) {
			return true
		}
	}
	return txtPath != "" && strings.Contains(strings.ToLower(txtPath), "ipcontrol")
}

func firstIPv4(ips []net.IP) string {
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
