package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/pumpctl/internal/config"
	"github.com/danmuck/pumpctl/internal/daemon"
	"github.com/danmuck/pumpctl/internal/logging"
	"github.com/danmuck/pumpctl/internal/observability"
)

func main() {
	path := flag.String("config", "cmd/pumpctl/config.toml", "path to pumpctl config")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pumpctl: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.Name)

	svc, err := daemon.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pumpctl: %v\n", err)
		os.Exit(1)
	}
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "pumpctl: %v\n", err)
		os.Exit(1)
	}
}
