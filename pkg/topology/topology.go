// Package topology builds the inventory tree the CLI's "tree" subcommand
// renders (spec.md §6, out-of-core CLI surface): for each discovered
// amplifier target, probe its device/system identity and group devices
// under systems under groups, using typed Go structs and the REST fetch
// plumbing in pkg/ampclient.
package topology

import (
	"context"
	"fmt"
	"sort"

	"github.com/corvidae/cecbridge/pkg/ampclient"
	"github.com/corvidae/cecbridge/pkg/discovery"
)

// Device is one probed amplifier endpoint.
type Device struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Model      string `json:"model"`
	Role       string `json:"role"`
	Serial     string `json:"serial"`
	Address    string `json:"address"`
	Port       int    `json:"port"`

	systemID string
	groupID  string
}

// System groups devices that share a systemId.
type System struct {
	SystemID   string   `json:"system_id"`
	SystemName string   `json:"system_name"`
	Devices    []Device `json:"devices"`
}

// Group groups systems that share a groupId ("ungrouped" when none).
type Group struct {
	GroupID string   `json:"group_id"`
	Systems []System `json:"systems"`
}

// Tree is the full inventory, matching the original's dict shape field
// for field so the CLI's --json output is a drop-in equivalent.
type Tree struct {
	Groups            []Group  `json:"groups"`
	UngroupedDevices  []Device `json:"ungrouped_devices"`
	Errors            []string `json:"errors"`
}

type systemAccum struct {
	name    string
	groupID string
	devices []*Device
}

// Build probes every target's /devices/current and, per distinct system,
// /systems/current, then assembles the grouped tree. A target that fails
// to answer /devices/current is silently skipped (best-effort inventory,
// matching the original's _safe_fetch_json).
func Build(ctx context.Context, targets []discovery.Target) Tree {
	devicesByID := make(map[string]*Device)

	for _, target := range targets {
		client := ampclient.New(target.Address, target.Port, target.BasePath)
		data, err := client.FetchJSON(ctx, "/devices/current")
		if err != nil || data == nil {
			continue
		}

		deviceID := stringOr(data["deviceId"], fmt.Sprintf("dispatcher:%s", target.Address))
		systemID := stringOr(data["systemId"], "")
		groupID := stringOr(data["groupId"], "")

		devicesByID[deviceID] = &Device{
			DeviceID:   deviceID,
			DeviceName: firstNonEmpty(stringOr(data["deviceName"], ""), stringOr(data["model"], ""), deviceID),
			Model:      stringOr(data["model"], ""),
			Role:       stringOr(data["role"], ""),
			Serial:     stringOr(data["serial"], ""),
			Address:    target.Address,
			Port:       target.Port,
			systemID:   systemID,
			groupID:    groupID,
		}
	}

	if len(devicesByID) == 0 {
		return Tree{Errors: []string{"no amplifier devices detected"}}
	}

	systems := make(map[string]*systemAccum)

	for _, dev := range devicesByID {
		if dev.systemID == "" {
			continue
		}
		sys, ok := systems[dev.systemID]
		if !ok {
			sys = &systemAccum{groupID: dev.groupID}
			systems[dev.systemID] = sys
		}
		sys.devices = append(sys.devices, dev)
	}

	for systemID, sys := range systems {
		probe := sys.devices[0]
		client := ampclient.New(probe.Address, probe.Port, "/ipcontrol/v1")
		info, err := client.FetchJSON(ctx, "/systems/current")
		if err == nil && info != nil {
			sys.name = stringOr(info["systemName"], systemID)
			if gid := stringOr(info["groupId"], ""); gid != "" {
				sys.groupID = gid
			}
		} else {
			sys.name = systemID
		}
	}

	groupedSystems := make(map[string]map[string]*systemAccum)
	for systemID, sys := range systems {
		groupID := sys.groupID
		if groupID == "" {
			groupID = "ungrouped"
		}
		if groupedSystems[groupID] == nil {
			groupedSystems[groupID] = make(map[string]*systemAccum)
		}
		groupedSystems[groupID][systemID] = sys
	}

	groupIDs := sortedKeys(groupedSystems)
	groups := make([]Group, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		systemIDs := sortedSystemKeys(groupedSystems[groupID])
		systemRows := make([]System, 0, len(systemIDs))
		for _, systemID := range systemIDs {
			sys := groupedSystems[groupID][systemID]
			sort.Slice(sys.devices, func(i, j int) bool { return sys.devices[i].DeviceName < sys.devices[j].DeviceName })
			devices := make([]Device, 0, len(sys.devices))
			for _, d := range sys.devices {
				devices = append(devices, *d)
			}
			systemRows = append(systemRows, System{SystemID: systemID, SystemName: sys.name, Devices: devices})
		}
		groups = append(groups, Group{GroupID: groupID, Systems: systemRows})
	}

	var ungrouped []Device
	for _, dev := range devicesByID {
		if dev.systemID == "" {
			ungrouped = append(ungrouped, *dev)
		}
	}
	sort.Slice(ungrouped, func(i, j int) bool { return ungrouped[i].DeviceName < ungrouped[j].DeviceName })

	return Tree{Groups: groups, UngroupedDevices: ungrouped, Errors: nil}
}

// RenderLines renders a Tree as the CLI's human-readable "tree" output
// (mirroring render_topology_tree_lines).
func RenderLines(t Tree) []string {
	if len(t.Errors) > 0 {
		return t.Errors
	}

	var lines []string
	for _, group := range t.Groups {
		lines = append(lines, fmt.Sprintf("Group %s", group.GroupID))
		for _, system := range group.Systems {
			lines = append(lines, fmt.Sprintf("  System %s (%s)", system.SystemName, system.SystemID))
			for _, dev := range system.Devices {
				lines = append(lines, fmt.Sprintf("    Device %s @ %s%s%s", dev.DeviceName, dev.Address, optField("model", dev.Model), optField("role", dev.Role)))
			}
		}
	}

	if len(t.UngroupedDevices) > 0 {
		lines = append(lines, "Ungrouped devices")
		for _, dev := range t.UngroupedDevices {
			lines = append(lines, fmt.Sprintf("  Device %s @ %s%s", dev.DeviceName, dev.Address, optField("model", dev.Model)))
		}
	}
	return lines
}

func optField(name, value string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf(" %s=%s", name, value)
}

func stringOr(v interface{}, fallback string) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]map[string]*systemAccum) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSystemKeys(m map[string]*systemAccum) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
