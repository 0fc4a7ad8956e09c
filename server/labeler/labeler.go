// Package labeler runs the pipeline over a directory of still images, and writes
// the jersey numbers it finds as a JSON dataset, optionally with annotated copies
// of the images.
//
// The images are treated as consecutive frames of one video, in filename order,
// so that the tracker can give the same player the same ID across images.
package labeler

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/server/analysis"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/tracker"
	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
)

type Options struct {
	AnnotatedDir   string // If not blank, write an annotated PNG of every image into this directory
	StdOutProgress bool
}

// ListImages returns the JPEG files in dir, sorted by name
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".jpg" || ext == ".jpeg") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Run processes the images in order, and returns the labels of every image.
// Only players that are visible in an image are labelled in it.
func Run(log logs.Log, proc analysis.Processor, ctx pipeline.Context, modelName string, files []string, options Options) (*nn.DatasetLabels, error) {
	if options.AnnotatedDir != "" {
		if err := os.MkdirAll(options.AnnotatedDir, 0755); err != nil {
			return nil, err
		}
	}
	labels := &nn.DatasetLabels{
		Model:  modelName,
		Images: []*nn.ImageLabels{},
	}
	nObjects := 0
	for i, fn := range files {
		img, err := cimg.ReadFile(fn)
		if err != nil {
			return nil, fmt.Errorf("Failed to read %v: %w", fn, err)
		}
		if img.NChan() == 4 {
			img = img.ToRGB()
		}
		tracks := proc.ProcessFrame(img, ctx)
		il := &nn.ImageLabels{
			Image:   filepath.Base(fn),
			Width:   img.Width,
			Height:  img.Height,
			Objects: []nn.NumberLabel{},
		}
		visible := []tracker.TrackedPlayer{}
		for _, t := range tracks {
			if t.DisappearedFrames != 0 {
				continue
			}
			visible = append(visible, t)
			il.Objects = append(il.Objects, nn.NumberLabel{
				TrackID:    t.ID,
				Number:     t.JerseyNumber,
				Confidence: t.Confidence,
				Box:        t.CurrentBox,
			})
		}
		nObjects += len(il.Objects)
		labels.Images = append(labels.Images, il)

		if options.AnnotatedDir != "" {
			out := filepath.Join(options.AnnotatedDir, strings.TrimSuffix(filepath.Base(fn), filepath.Ext(fn))+".png")
			if err := Annotate(img, visible).SavePNG(out); err != nil {
				return nil, fmt.Errorf("Failed to save %v: %w", out, err)
			}
		}
		if options.StdOutProgress {
			fmt.Printf("\r%v/%v images", i+1, len(files))
		}
	}
	if options.StdOutProgress {
		fmt.Printf("\n")
	}
	log.Infof("Labelled %v players in %v images", nObjects, len(files))
	return labels, nil
}

// Annotate draws a box and label around every player
func Annotate(img *cimg.Image, players []tracker.TrackedPlayer) *gg.Context {
	dc := gg.NewContextForRGBA(toRGBA(img))
	dc.SetLineWidth(2)
	for _, p := range players {
		if p.RosterMatch != nil {
			dc.SetRGB(0, 1, 0)
		} else {
			dc.SetRGB(1, 1, 0)
		}
		b := p.CurrentBox
		dc.DrawRectangle(float64(b.X), float64(b.Y), float64(b.Width), float64(b.Height))
		dc.Stroke()
		dc.DrawString(p.Label(), float64(b.X), float64(b.Y)-4)
	}
	return dc
}

func toRGBA(img *cimg.Image) *image.RGBA {
	rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	nchan := img.NChan()
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < img.Width; x++ {
			if nchan >= 3 {
				dst[x*4], dst[x*4+1], dst[x*4+2] = src[x*nchan], src[x*nchan+1], src[x*nchan+2]
			} else {
				v := src[x*nchan]
				dst[x*4], dst[x*4+1], dst[x*4+2] = v, v, v
			}
			dst[x*4+3] = 255
		}
	}
	return rgba
}
