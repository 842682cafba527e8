package main

import (
	"flag"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	var configPath string
	var addr string
	var dataset string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/loadlens/mock.yml)")
	flag.StringVar(&addr, "addr", "", "override listen address")
	flag.StringVar(&dataset, "dataset", "", "YAML dataset file (default is a generated dataset)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("loadlens-mock %s\n", version)
		return
	}

	cfg, err := loadMockConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if dataset != "" {
		cfg.Dataset = dataset
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
