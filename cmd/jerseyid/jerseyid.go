package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/jerseyid/pkg/nnload"
	"github.com/cyclopcam/jerseyid/pkg/ocr/tesseract"
	"github.com/cyclopcam/jerseyid/pkg/ortdetect"
	"github.com/cyclopcam/jerseyid/server"
	"github.com/cyclopcam/jerseyid/server/config"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/rosterdb"
	"github.com/cyclopcam/logs"
)

func main() {
	parser := argparse.NewParser("jerseyid", "Identify players by their jersey numbers")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file (optional)", Default: ""})
	modelDir := parser.String("", "models", &argparse.Options{Help: "Directory containing the detection model", Default: ""})
	modelName := parser.String("", "model", &argparse.Options{Help: "Detection model name, eg jerseynum_320_320", Default: ""})
	rosterDB := parser.String("", "roster-db", &argparse.Options{Help: "Roster database (sqlite)", Default: ""})
	team := parser.String("", "team", &argparse.Options{Help: "Active team on startup", Default: ""})
	httpAddr := parser.String("", "http", &argparse.Options{Help: "HTTP listen address, eg :8090", Default: ""})
	tessdata := parser.String("", "tessdata", &argparse.Options{Help: "Tesseract language data directory", Default: ""})
	onnxLib := parser.String("", "onnx", &argparse.Options{Help: "Path to the onnxruntime shared library", Default: ""})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Log every frame", Default: false})
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
	// Command line arguments override the config file
	override := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	override(&cfg.ModelDir, *modelDir)
	override(&cfg.ModelName, *modelName)
	override(&cfg.RosterDB, *rosterDB)
	override(&cfg.Team, *team)
	override(&cfg.HTTPAddr, *httpAddr)
	override(&cfg.TessdataPath, *tessdata)
	override(&cfg.OnnxLibrary, *onnxLib)
	if *verbose {
		cfg.Verbose = true
	}

	detector, err := nnload.LoadModel(logger, cfg.ModelURL, cfg.ModelDir, cfg.ModelName, ortdetect.Options{
		SharedLibPath: cfg.OnnxLibrary,
		NumThreads:    cfg.NumThreads,
	})
	if err != nil {
		logger.Errorf("Failed to load detection model: %v", err)
		os.Exit(1)
	}

	text, err := tesseract.New(tesseract.Options{TessdataPath: cfg.TessdataPath})
	if err != nil {
		detector.Close()
		logger.Errorf("Failed to start text recognizer: %v", err)
		os.Exit(1)
	}

	var db *rosterdb.RosterDB
	if cfg.RosterDB != "" {
		db, err = rosterdb.Open(logger, cfg.RosterDB)
		if err != nil {
			text.Close()
			detector.Close()
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}

	pipe := server.BuildPipeline(logger, cfg, detector, text, pipeline.Callbacks{})
	srv, err := server.NewServer(logger, cfg, pipe, db)
	if err != nil {
		pipe.Close()
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
		logger.Errorf("ListenHTTP failed: %v", err)
		srv.Shutdown()
	}
	<-srv.ShutdownComplete
	logger.Close()
}
