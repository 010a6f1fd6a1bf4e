package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/server"
	"github.com/cyclopcam/visiondemo/server/config"
)

func main() {
	parser := argparse.NewParser("visiondemo", "Image classification and video object detection demo")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file (optional)", Default: ""})
	listen := parser.String("", "listen", &argparse.Options{Help: "HTTP listen address, overrides config", Default: ""})
	modelDir := parser.String("", "models", &argparse.Options{Help: "Model weights directory, overrides config", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *modelDir != "" {
		cfg.ModelDir = *modelDir
	}

	srv, err := server.NewServer(logger, cfg, nil)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(cfg.Listen); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		os.Exit(1)
	}
	if err := <-srv.ShutdownComplete; err != nil {
		os.Exit(1)
	}
}
