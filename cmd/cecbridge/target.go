package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corvidae/cecbridge/pkg/config"
	"github.com/corvidae/cecbridge/pkg/discovery"
	"github.com/corvidae/cecbridge/pkg/topology"
)

// targetFlags holds the --ip/--port/--base-path/--discover-timeout/
// --index/--system flags every non-daemon subcommand shares.
type targetFlags struct {
	ip              string
	port            int
	basePath        string
	discoverTimeout float64
	index           int
	hasIndex        bool
	system          string
	configPath      string

	portSet     bool
	basePathSet bool
}

// resolve picks a target in three steps: an explicit --ip bypasses
// everything else; otherwise a loaded config's [target] section is used
// if it names an IP; otherwise mDNS-discover and pick by --system (name
// disambiguation across the discovered inventory), by --index, or the
// sole result.
func (f targetFlags) resolve(ctx context.Context) (discovery.Target, error) {
	if f.ip != "" {
		return discovery.Target{
			Name:     "manual",
			Address:  f.ip,
			Port:     f.port,
			BasePath: config.NormalizeBasePath(f.basePath),
		}, nil
	}

	if t, ok := f.configTarget(); ok {
		return t, nil
	}

	timeout := time.Duration(f.discoverTimeout * float64(time.Second))
	services, err := discovery.Discover(ctx, "", timeout)
	if err != nil {
		return discovery.Target{}, fmt.Errorf("discovery failed: %w", err)
	}

	if f.system != "" {
		return pickServiceBySystem(ctx, services, f.system)
	}
	return pickService(services, f.index, f.hasIndex)
}

// configTarget resolves step 2 of target precedence: the loaded config's
// [target] section, if it names an IP, with any explicit --port/
// --base-path override applied on top. ok is false when the config has
// no target.ip (step 3, discovery, applies instead).
func (f targetFlags) configTarget() (discovery.Target, bool) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil || cfg.Target.IP == "" {
		return discovery.Target{}, false
	}
	port := cfg.Target.Port
	if f.portSet {
		port = f.port
	}
	basePath := cfg.Target.BasePath
	if f.basePathSet {
		basePath = config.NormalizeBasePath(f.basePath)
	}
	return discovery.Target{
		Name:     "config",
		Address:  cfg.Target.IP,
		Port:     port,
		BasePath: basePath,
	}, true
}

// resolveAllTargets applies the same 3-step precedence as resolve, but
// for the enumerating subcommands (list, tree): an explicit --ip or a
// configured target.ip yields that one target; otherwise every service
// found via mDNS is returned, unfiltered by --index/--system.
func resolveAllTargets(ctx context.Context, f *targetFlags) ([]discovery.Target, error) {
	if f.ip != "" {
		return []discovery.Target{{
			Name:     "manual",
			Address:  f.ip,
			Port:     f.port,
			BasePath: config.NormalizeBasePath(f.basePath),
		}}, nil
	}
	if t, ok := f.configTarget(); ok {
		return []discovery.Target{t}, nil
	}

	timeout := time.Duration(f.discoverTimeout * float64(time.Second))
	services, err := discovery.Discover(ctx, "", timeout)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	return services, nil
}

func pickService(services []discovery.Target, index int, hasIndex bool) (discovery.Target, error) {
	if len(services) == 0 {
		return discovery.Target{}, fmt.Errorf("no service detected via mDNS (Bonjour); check network / Wi-Fi isolation")
	}
	if !hasIndex {
		if len(services) == 1 {
			return services[0], nil
		}
		for i, s := range services {
			fmt.Printf("[%d] %s -> %s:%d%s\n", i, s.Name, s.Address, s.Port, s.BasePath)
		}
		return discovery.Target{}, fmt.Errorf("multiple services detected; run again with --index N or --system NAME")
	}
	if index < 0 || index >= len(services) {
		return discovery.Target{}, fmt.Errorf("invalid index: %d", index)
	}
	return services[index], nil
}

// pickServiceBySystem resolves --system NAME by building the same
// inventory tree "tree" renders and matching system names case-
// insensitively, then returning the first device of the matched system.
// A name matching systems in more than one group is rejected as
// ambiguous rather than guessing.
func pickServiceBySystem(ctx context.Context, services []discovery.Target, name string) (discovery.Target, error) {
	if len(services) == 0 {
		return discovery.Target{}, fmt.Errorf("no service detected via mDNS (Bonjour); check network / Wi-Fi isolation")
	}
	requested := strings.TrimSpace(name)
	if requested == "" {
		return discovery.Target{}, fmt.Errorf("system name cannot be empty")
	}

	tree := topology.Build(ctx, services)

	type match struct {
		groupID string
		system  topology.System
	}
	var matches []match
	for _, group := range tree.Groups {
		for _, sys := range group.Systems {
			if strings.EqualFold(sys.SystemName, requested) {
				matches = append(matches, match{groupID: group.GroupID, system: sys})
			}
		}
	}

	if len(matches) == 0 {
		return discovery.Target{}, fmt.Errorf("system %q not found; run 'cecbridge tree' to list available systems", requested)
	}
	if len(matches) > 1 {
		groups := make(map[string]struct{})
		for _, m := range matches {
			groups[m.groupID] = struct{}{}
		}
		names := make([]string, 0, len(groups))
		for g := range groups {
			names = append(names, g)
		}
		return discovery.Target{}, fmt.Errorf("system name %q is ambiguous across groups: %s; use --ip or rename systems", requested, strings.Join(names, ", "))
	}

	devices := matches[0].system.Devices
	if len(devices) == 0 {
		return discovery.Target{}, fmt.Errorf("system %q has no reachable devices in group %s", requested, matches[0].groupID)
	}
	selected := devices[0]
	return discovery.Target{
		Name:     fmt.Sprintf("%s@%s", requested, matches[0].groupID),
		Address:  selected.Address,
		Port:     selected.Port,
		BasePath: "/ipcontrol/v1",
	}, nil
}
