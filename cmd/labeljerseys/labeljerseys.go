package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/jerseyid/pkg/nnload"
	"github.com/cyclopcam/jerseyid/pkg/ocr/tesseract"
	"github.com/cyclopcam/jerseyid/pkg/ortdetect"
	"github.com/cyclopcam/jerseyid/server"
	"github.com/cyclopcam/jerseyid/server/config"
	"github.com/cyclopcam/jerseyid/server/labeler"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/rosterdb"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("labeljerseys", "Label the jersey numbers in a directory of images")
	input := parser.String("i", "input", &argparse.Options{Help: "Directory of JPEG images, processed in filename order", Required: true})
	output := parser.File("o", "output", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0664, &argparse.Options{Help: "Output label file", Required: true})
	annotated := parser.String("a", "annotated", &argparse.Options{Help: "Write annotated PNG images into this directory", Default: ""})
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file (optional)", Default: ""})
	modelDir := parser.String("", "models", &argparse.Options{Help: "Directory containing the detection model", Default: ""})
	modelName := parser.String("n", "model", &argparse.Options{Help: "Detection model name", Default: ""})
	rosterDB := parser.String("", "roster-db", &argparse.Options{Help: "Roster database (sqlite)", Default: ""})
	team := parser.String("t", "team", &argparse.Options{Help: "Only accept numbers on this team's roster", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	cfg, err := config.LoadConfig(*configFile)
	check(err)
	if *modelDir != "" {
		cfg.ModelDir = *modelDir
	}
	if *modelName != "" {
		cfg.ModelName = *modelName
	}

	ctx := pipeline.Context{
		Team:                           *team,
		DetectionConfidenceThreshold:   cfg.DetectionConfidenceThreshold,
		RecognitionConfidenceThreshold: cfg.RecognitionConfidenceThreshold,
	}
	if *rosterDB != "" {
		db, err := rosterdb.Open(logger, *rosterDB)
		check(err)
		defer db.Close()
		if *team != "" {
			ctx.Roster, err = db.RosterSet(*team)
			check(err)
			ctx.Lookup = db
		}
	} else if *team != "" {
		logger.Warnf("No roster database, so team '%v' has no roster", *team)
	}

	files, err := labeler.ListImages(*input)
	check(err)

	detector, err := nnload.LoadModel(logger, cfg.ModelURL, cfg.ModelDir, cfg.ModelName, ortdetect.Options{
		SharedLibPath: cfg.OnnxLibrary,
		NumThreads:    cfg.NumThreads,
	})
	check(err)
	text, err := tesseract.New(tesseract.Options{TessdataPath: cfg.TessdataPath})
	if err != nil {
		detector.Close()
	}
	check(err)

	pipe := server.BuildPipeline(logger, cfg, detector, text, pipeline.Callbacks{})
	defer pipe.Close()

	labels, err := labeler.Run(logger, pipe, ctx, cfg.ModelName, files, labeler.Options{
		AnnotatedDir:   *annotated,
		StdOutProgress: true,
	})
	check(err)

	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(labels))
}
