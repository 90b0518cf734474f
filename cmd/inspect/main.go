package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to terrain.snap.zst")
		configPath = flag.String("config", "", "config to replay with the snapshot seed (optional)")
		stampDir   = flag.String("stamps", "", "stamp image directory for -config (default: the config's directory)")
		checkLog   = flag.Bool("placements", true, "compare the run's placement log with the snapshot when present")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := loadVerified(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapshot:", err)
		os.Exit(1)
	}
	summarize(os.Stdout, *snapPath, snap)

	if *checkLog {
		n, err := checkPlacementLog(filepath.Dir(*snapPath), snap)
		switch {
		case os.IsNotExist(err):
			fmt.Println("placement log: none")
		case err != nil:
			fmt.Fprintln(os.Stderr, "placement log:", err)
			os.Exit(1)
		default:
			fmt.Printf("placement log ok: %d records\n", n)
		}
	}

	if *configPath == "" {
		return
	}
	dir := *stampDir
	if dir == "" {
		dir = filepath.Dir(*configPath)
	}
	if err := replay(context.Background(), snap, *configPath, dir); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: seed=%d digests match\n", snap.Header.Seed)
}
