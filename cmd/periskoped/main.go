package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/kashyapanjali/periskope/internal/config"
	"github.com/kashyapanjali/periskope/internal/daemon"
	"github.com/kashyapanjali/periskope/internal/workspace"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	addrFlag := flag.String("addr", "", "listen address (overrides config)")
	dataDirFlag := flag.String("data-dir", "", "data directory (overrides config)")
	debugFlag := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	profile := workspace.Resolve(*profileFlag)
	if err := workspace.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := workspace.EnsureDir(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "error: load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadOrDefault(workspace.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if *dataDirFlag != "" {
		cfg.Server.DataDir = *dataDirFlag
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Profile: profile,
			Server:  cfg.Server,
			Debug:   *debugFlag,
		}),
	)

	app.Run()
}
