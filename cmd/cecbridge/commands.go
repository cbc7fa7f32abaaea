package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/corvidae/cecbridge/pkg/ampclient"
	"github.com/corvidae/cecbridge/pkg/topology"
)

func newTargetFlagSet(name string) (*flag.FlagSet, *targetFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	f := &targetFlags{}
	fs.StringVar(&f.ip, "ip", "", "manual IP (bypass discovery and config)")
	fs.IntVar(&f.port, "port", 80, "amplifier port")
	fs.StringVar(&f.basePath, "base-path", "/ipcontrol/v1", "amplifier API base path")
	fs.Float64Var(&f.discoverTimeout, "discover-timeout", 3.0, "mDNS discovery timeout (seconds)")
	fs.IntVar(&f.index, "index", -1, "service index when multiple are discovered")
	fs.StringVar(&f.system, "system", "", "pick the discovered service by system name")
	fs.StringVar(&f.configPath, "config", "", "config file path (default: XDG config dir)")
	return fs, f
}

func parseTargetFlags(args []string, fs *flag.FlagSet, f *targetFlags) {
	fs.Parse(args)
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "index":
			f.hasIndex = true
		case "port":
			f.portSet = true
		case "base-path":
			f.basePathSet = true
		}
	})
}

func runList(args []string) int {
	fs, f := newTargetFlagSet("list")
	parseTargetFlags(args, fs, f)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(f.discoverTimeout*float64(time.Second))+time.Second)
	defer cancel()

	services, err := resolveAllTargets(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if len(services) == 0 {
		fmt.Println("No service detected.")
		return 0
	}
	for i, s := range services {
		fmt.Printf("[%d] %s -> %s:%d%s\n", i, s.Name, s.Address, s.Port, s.BasePath)
	}
	return 0
}

func runTree(args []string) int {
	fs, f := newTargetFlagSet("tree")
	asJSON := fs.Bool("json", false, "emit the tree as JSON")
	parseTargetFlags(args, fs, f)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(f.discoverTimeout*float64(time.Second))+time.Second)
	defer cancel()

	targets, err := resolveAllTargets(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	tree := topology.Build(ctx, targets)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tree); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
		return 0
	}
	for _, line := range topology.RenderLines(tree) {
		fmt.Println(line)
	}
	return 0
}

// withClient resolves a target and hands a ready ampclient.Client to fn,
// translating any error into the CLI's "Error: ...\n" + exit-2 convention.
func withClient(args []string, cmdName string, fn func(ctx context.Context, client *ampclient.Client) error) int {
	fs, f := newTargetFlagSet(cmdName)
	parseTargetFlags(args, fs, f)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	target, err := f.resolve(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	client := ampclient.New(target.Address, target.Port, target.BasePath)

	if err := fn(ctx, client); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func runSystems(args []string) int {
	return withClient(args, "systems", func(ctx context.Context, client *ampclient.Client) error {
		data, err := client.GetSystems(ctx)
		if err != nil {
			return err
		}
		out, err := json.Marshal(data)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	})
}

func runGetVol(args []string) int {
	return withClient(args, "getvol", func(ctx context.Context, client *ampclient.Client) error {
		volume, err := client.GetVolume(ctx)
		if err != nil {
			return err
		}
		fmt.Println(volume)
		return nil
	})
}

func runSetVol(args []string) int {
	fs, f := newTargetFlagSet("setvol")
	parseTargetFlags(args, fs, f)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: setvol requires exactly one argument (0-100)")
		return 2
	}
	value, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid volume %q: %v\n", fs.Arg(0), err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	target, err := f.resolve(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	client := ampclient.New(target.Address, target.Port, target.BasePath)
	if err := client.SetVolume(ctx, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	fmt.Println("OK")
	return 0
}

func runVolUp(args []string) int {
	return withClient(args, "volup", func(ctx context.Context, client *ampclient.Client) error {
		if err := client.VolumeUp(ctx); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	})
}

func runVolDown(args []string) int {
	return withClient(args, "voldown", func(ctx context.Context, client *ampclient.Client) error {
		if err := client.VolumeDown(ctx); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	})
}

func runMute(args []string) int {
	return withClient(args, "mute", func(ctx context.Context, client *ampclient.Client) error {
		if err := client.MuteToggle(ctx); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	})
}
