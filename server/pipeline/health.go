package pipeline

type HealthState string

const (
	HealthOK       HealthState = "ok"
	HealthDegraded HealthState = "degraded" // A stage has been failing on every frame
)

// Health reports persistent stage failures, which are otherwise invisible
// because per-frame errors never escape ProcessFrame.
type Health struct {
	State                         HealthState `json:"state"`
	ConsecutiveDetectorFailures   int         `json:"consecutiveDetectorFailures"`
	ConsecutiveRecognizerFailures int         `json:"consecutiveRecognizerFailures"`
	FramesProcessed               int64       `json:"framesProcessed"`
	LastError                     string      `json:"lastError,omitempty"`
}

func (p *Pipeline) Health() Health {
	p.healthLock.Lock()
	defer p.healthLock.Unlock()
	return p.health
}

func (p *Pipeline) recordFrame() {
	p.healthLock.Lock()
	defer p.healthLock.Unlock()
	p.health.FramesProcessed++
}

func (p *Pipeline) recordDetector(err error) {
	p.healthLock.Lock()
	defer p.healthLock.Unlock()
	if err != nil {
		p.health.ConsecutiveDetectorFailures++
		p.health.LastError = "Detector: " + err.Error()
	} else {
		p.health.ConsecutiveDetectorFailures = 0
	}
	p.updateStateLocked()
}

func (p *Pipeline) recordRecognizer(err error) {
	p.healthLock.Lock()
	defer p.healthLock.Unlock()
	if err != nil {
		p.health.ConsecutiveRecognizerFailures++
		p.health.LastError = "Recognizer: " + err.Error()
	} else {
		p.health.ConsecutiveRecognizerFailures = 0
	}
	p.updateStateLocked()
}

func (p *Pipeline) updateStateLocked() {
	prev := p.health.State
	limit := p.config.HealthFailureStreak
	if p.health.ConsecutiveDetectorFailures >= limit || p.health.ConsecutiveRecognizerFailures >= limit {
		p.health.State = HealthDegraded
	} else {
		p.health.State = HealthOK
	}
	if prev != p.health.State {
		if p.health.State == HealthDegraded {
			p.log.Errorf("Pipeline is degraded: %v", p.health.LastError)
		} else {
			p.log.Infof("Pipeline has recovered")
		}
	}
}
