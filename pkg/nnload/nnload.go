// Package nnload finds the jersey number detection model on disk (downloading it if necessary),
// and constructs a detector for it, so that callers don't need to know which inference
// runtime is behind the nn.ObjectDetector interface.
package nnload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/ortdetect"
	"github.com/cyclopcam/logs"
)

// All model files live in this subdirectory of the model dir, and of the download URL
const ModelSubDir = "jersey/onnx"

// A model consists of these files, eg jerseynum_320_320.json and jerseynum_320_320.onnx
var ModelExtensions = []string{".json", ".onnx"}

var ErrModelNotFound = errors.New("Model not found")

func downloadFile(srcUrl, targetFile string) error {
	tempFile := targetFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(targetFile), 0755); err != nil {
		return err
	}
	resp, err := http.DefaultClient.Get(srcUrl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("HTTP error %v", resp.Status)
	}
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, resp.Body)
	if err != nil {
		os.Remove(tempFile)
		return err
	}
	file.Close()
	return os.Rename(tempFile, targetFile)
}

// ModelPathBase returns the path of the model files, without extension
func ModelPathBase(modelDir, modelName string) string {
	return filepath.Join(modelDir, ModelSubDir, modelName)
}

// If the model files are not yet on disk, then download them from baseUrl.
// If baseUrl is blank, missing files are an error.
// Returns immediately if the files are already downloaded.
func DownloadModel(log logs.Log, baseUrl, modelDir, modelName string) error {
	for _, ext := range ModelExtensions {
		diskPath := ModelPathBase(modelDir, modelName) + ext
		if _, err := os.Stat(diskPath); os.IsNotExist(err) {
			if baseUrl == "" {
				return fmt.Errorf("%w: %v", ErrModelNotFound, diskPath)
			}
			networkUrl := baseUrl + "/" + ModelSubDir + "/" + modelName + ext
			log.Infof("Downloading %v to %v", networkUrl, diskPath)
			if err := downloadFile(networkUrl, diskPath); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

// LoadModel loads the detection model from disk, downloading it first if necessary.
// modelName is the base filename, without the extensions (eg "jerseynum_320_320").
func LoadModel(log logs.Log, baseUrl, modelDir, modelName string, options ortdetect.Options) (nn.ObjectDetector, error) {
	if err := DownloadModel(log, baseUrl, modelDir, modelName); err != nil {
		return nil, fmt.Errorf("Download failed: %w", err)
	}
	base := ModelPathBase(modelDir, modelName)
	config, err := nn.LoadModelConfig(base + ".json")
	if err != nil {
		return nil, err
	}
	log.Infof("Loading %v model %v (%v x %v, quantized: %v)", config.Architecture, modelName, config.Width, config.Height, config.Quantized)
	return ortdetect.NewDetector(config, base+".onnx", options)
}
