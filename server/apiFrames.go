package server

import (
	"net/http"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/server/analysis"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/tracker"
	"github.com/cyclopcam/www"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const maxFrameBytes = 16 * 1024 * 1024

// decodeFrame turns a JPEG into an RGB frame
func decodeFrame(body []byte) *cimg.Image {
	img, err := cimg.Decompress(body)
	if err != nil {
		www.PanicBadRequestf("Invalid JPEG image: %v", err)
	}
	switch img.NChan() {
	case 3:
		return img
	case 4:
		return img.ToRGB()
	}
	www.PanicBadRequestf("Frame must be a colour image (it has %v channels)", img.NChan())
	return nil
}

func (s *Server) httpPostFrame(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	img := decodeFrame(www.ReadLimited(w, r, maxFrameBytes))
	seq := s.worker.Submit(img)
	if seq == 0 {
		www.Panic(http.StatusServiceUnavailable, "Server is shutting down")
	}
	type response struct {
		Seq uint64 `json:"seq"`
	}
	www.SendJSON(w, &response{Seq: seq})
}

// The tracks of the most recently analyzed frame
func (s *Server) httpTracks(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	latest := s.worker.Latest()
	if latest == nil {
		latest = &analysis.Result{Tracks: []tracker.TrackedPlayer{}}
	}
	www.SendJSON(w, latest)
}

// Forget all tracks
func (s *Server) httpReset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.Log.Infof("Resetting tracks")
	s.pipeline.Reset()
	www.SendOK(w)
}

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type response struct {
		Health        pipeline.Health   `json:"health"`
		Timing        pipeline.TimingMS `json:"timing"`
		Frames        analysis.Stats    `json:"frames"`
		Team          string            `json:"team"`
		Roster        []string          `json:"roster"` // null when there is no roster constraint
		UptimeSeconds float64           `json:"uptimeSeconds"`
	}
	team, set := s.active()
	resp := response{
		Health:        s.pipeline.Health(),
		Timing:        s.pipeline.TimingMS(),
		Frames:        s.worker.Stats(),
		Team:          team,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}
	if set != nil {
		resp.Roster = set.Numbers()
	}
	www.CacheNever(w)
	www.SendJSON(w, &resp)
}

// Stream the tracks of every analyzed frame, as JSON text messages
func (s *Server) httpStreamTracks(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpStreamTracks websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	results := s.worker.AddWatcher()
	defer s.worker.RemoveWatcher(results)

	// We don't expect any messages, but we must read to notice when the client goes away
	clientGone := make(chan bool)
	go func() {
		for {
			if _, _, err := c.NextReader(); err != nil {
				close(clientGone)
				return
			}
		}
	}()

	s.Log.Infof("Track stream to %v starting", r.RemoteAddr)
	for {
		select {
		case result, ok := <-results:
			if !ok {
				c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server is shutting down"))
				return
			}
			if err := c.WriteJSON(result); err != nil {
				s.Log.Infof("Track stream to %v closed: %v", r.RemoteAddr, err)
				return
			}
		case <-clientGone:
			s.Log.Infof("Track stream to %v closed by client", r.RemoteAddr)
			return
		}
	}
}
