// Package analysis runs the frame pipeline on a single background goroutine.
//
// Frames are submitted without blocking. There is a single pending slot, so if a
// frame arrives while the previous one is still being analyzed, it replaces whatever
// frame was waiting. The pipeline never falls more than one frame behind real time.
package analysis

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/gen"
	"github.com/cyclopcam/jerseyid/pkg/idgen"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/tracker"
	"github.com/cyclopcam/logs"
)

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// Processor is satisfied by *pipeline.Pipeline
type Processor interface {
	ProcessFrame(frame *cimg.Image, ctx pipeline.Context) []tracker.TrackedPlayer
}

// Result is the analysis of one frame
type Result struct {
	Seq        uint64                  `json:"seq"`
	Tracks     []tracker.TrackedPlayer `json:"tracks"`
	ReceivedAt time.Time               `json:"receivedAt"`
	Duration   time.Duration           `json:"duration"`
}

type Stats struct {
	Submitted int64 `json:"submitted"`
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
}

type pendingFrame struct {
	seq        uint64
	img        *cimg.Image
	receivedAt time.Time
}

type Worker struct {
	log       logs.Log
	processor Processor
	context   func() pipeline.Context // Read once per frame, so that roster changes take effect on the next frame
	onResult  func(*Result)
	seq       idgen.Sequence

	slotLock sync.Mutex
	slotCond *sync.Cond
	pending  *pendingFrame
	closed   bool
	done     chan struct{}

	watchersLock sync.RWMutex
	watchers     []chan *Result

	latest    atomic.Pointer[Result]
	submitted atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
}

// NewWorker starts the analysis goroutine.
// onResult may be nil. If not nil, it is called on the analysis goroutine after every frame.
func NewWorker(log logs.Log, processor Processor, context func() pipeline.Context, onResult func(*Result)) *Worker {
	if context == nil {
		context = func() pipeline.Context { return pipeline.Context{} }
	}
	w := &Worker{
		log:       log,
		processor: processor,
		context:   context,
		onResult:  onResult,
		done:      make(chan struct{}),
	}
	w.slotCond = sync.NewCond(&w.slotLock)
	go w.run()
	return w
}

// Submit hands a frame to the worker, and never blocks.
// The worker takes ownership of the frame.
// Returns the frame's sequence number, or zero if the worker is closed.
func (w *Worker) Submit(img *cimg.Image) uint64 {
	w.slotLock.Lock()
	defer w.slotLock.Unlock()
	if w.closed {
		return 0
	}
	w.submitted.Add(1)
	if w.pending != nil {
		w.dropped.Add(1)
	}
	w.pending = &pendingFrame{
		seq:        w.seq.Next(),
		img:        img,
		receivedAt: time.Now(),
	}
	w.slotCond.Signal()
	return w.pending.seq
}

// Close stops accepting frames. A frame that is being analyzed is allowed to finish,
// but a frame that is still waiting is discarded. Watcher channels are closed.
func (w *Worker) Close() {
	w.slotLock.Lock()
	if w.closed {
		w.slotLock.Unlock()
		return
	}
	w.closed = true
	if w.pending != nil {
		w.dropped.Add(1)
		w.pending = nil
	}
	w.slotCond.Signal()
	w.slotLock.Unlock()

	<-w.done

	w.watchersLock.Lock()
	for _, ch := range w.watchers {
		close(ch)
	}
	w.watchers = nil
	w.watchersLock.Unlock()
}

// Latest returns the most recent result, or nil if no frame has been analyzed yet
func (w *Worker) Latest() *Result {
	return w.latest.Load()
}

func (w *Worker) Stats() Stats {
	return Stats{
		Submitted: w.submitted.Load(),
		Processed: w.processed.Load(),
		Dropped:   w.dropped.Load(),
	}
}

// AddWatcher registers to receive every result, in frame order.
// If the watcher falls too far behind, results are dropped.
// The channel is closed when the worker is closed.
func (w *Worker) AddWatcher() chan *Result {
	w.watchersLock.Lock()
	defer w.watchersLock.Unlock()
	ch := make(chan *Result, WatcherChannelSize)
	if w.isClosed() {
		close(ch)
		return ch
	}
	w.watchers = append(w.watchers, ch)
	return ch
}

// Unregister from results
func (w *Worker) RemoveWatcher(ch chan *Result) {
	w.watchersLock.Lock()
	defer w.watchersLock.Unlock()
	for i, wch := range w.watchers {
		if wch == ch {
			w.watchers = gen.DeleteFromSliceUnordered(w.watchers, i)
			return
		}
	}
	// After Close, the watcher list is empty
	if !w.isClosed() {
		w.log.Debugf("Analysis RemoveWatcher failed to find channel")
	}
}

func (w *Worker) isClosed() bool {
	w.slotLock.Lock()
	defer w.slotLock.Unlock()
	return w.closed
}

// Block until a frame is pending, or we're closed. Returns nil when closed.
func (w *Worker) next() *pendingFrame {
	w.slotLock.Lock()
	defer w.slotLock.Unlock()
	for w.pending == nil && !w.closed {
		w.slotCond.Wait()
	}
	if w.closed {
		return nil
	}
	f := w.pending
	w.pending = nil
	return f
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		f := w.next()
		if f == nil {
			return
		}
		start := time.Now()
		tracks := w.processor.ProcessFrame(f.img, w.context())
		result := &Result{
			Seq:        f.seq,
			Tracks:     tracks,
			ReceivedAt: f.receivedAt,
			Duration:   time.Since(start),
		}
		w.processed.Add(1)
		w.latest.Store(result)
		w.sendToWatchers(result)
		if w.onResult != nil {
			w.onResult(result)
		}
	}
}

func (w *Worker) sendToWatchers(result *Result) {
	w.watchersLock.RLock()
	defer w.watchersLock.RUnlock()
	for _, ch := range w.watchers {
		// SYNC-WATCHER-CHANNEL-SIZE
		if len(ch) >= cap(ch)*9/10 {
			// One slow watcher must not stall the others
			w.log.Warnf("Analysis watcher is falling behind. Dropping frame %v", result.Seq)
		} else {
			ch <- result
		}
	}
}
