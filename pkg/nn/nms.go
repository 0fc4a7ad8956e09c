package nn

import "sort"

// Return the detections whose score is at least 'threshold'
func FilterByScore(dets []RawDetection, threshold float32) []RawDetection {
	out := make([]RawDetection, 0, len(dets))
	for _, d := range dets {
		if d.Score >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// Greedy non-max suppression.
// Candidates are visited in order of descending score, and a candidate is kept unless
// its IoU with an already-kept candidate exceeds iouThreshold.
// The input slice is not modified.
func NMS(dets []RawDetection, iouThreshold float32) []RawDetection {
	sorted := make([]RawDetection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	kept := make([]RawDetection, 0, len(sorted))
	for _, cand := range sorted {
		suppressed := false
		for _, k := range kept {
			if cand.Box.IOU(k.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}
