package nn

// ImageLabels contains the jersey numbers found in a single image
type ImageLabels struct {
	Image   string        `json:"image"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Objects []NumberLabel `json:"objects"`
}

// NumberLabel is one jersey number found in an image
type NumberLabel struct {
	TrackID    string  `json:"trackID,omitempty"`
	Number     string  `json:"number"`
	Confidence float32 `json:"confidence,omitempty"`
	Box        Rect    `json:"box"`
}

// DatasetLabels is the output of a labelling run over many images
type DatasetLabels struct {
	Model  string         `json:"model"`
	Images []*ImageLabels `json:"images"`
}
