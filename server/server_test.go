package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/ocr"
	"github.com/cyclopcam/jerseyid/pkg/roster"
	"github.com/cyclopcam/jerseyid/server/analysis"
	"github.com/cyclopcam/jerseyid/server/config"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/rosterdb"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	config nn.ModelConfig
}

func (f *fakeDetector) Close() {}

func (f *fakeDetector) Config() *nn.ModelConfig {
	return &f.config
}

func (f *fakeDetector) Detect(img *cimg.Image, out *nn.RawOutput) error {
	// One region at pixels (80,80) - (160,160) of a 320x320 frame
	out.Detections[0] = nn.RawDetection{Box: nn.NormRect{X1: 0.25, Y1: 0.25, X2: 0.5, Y2: 0.5}, Score: 0.8}
	out.Count = 1
	return nil
}

type fakeText struct{}

func (f *fakeText) Recognize(img *cimg.Image) ([]ocr.TextElement, error) {
	return []ocr.TextElement{{Text: "10", Box: nn.Rect{X: 10, Y: 20, Width: 50, Height: 42}, Confidence: 0.9}}, nil
}

func (f *fakeText) Close() {}

func newTestServer(t *testing.T, withDB bool) *Server {
	log := logs.NewTestingLog(t)
	cfg := config.Default()
	detector := &fakeDetector{config: nn.ModelConfig{Width: 320, Height: 320, MaxDetections: 10}}
	pipe := BuildPipeline(log, cfg, detector, &fakeText{}, pipeline.Callbacks{})
	var db *rosterdb.RosterDB
	if withDB {
		var err error
		db, err = rosterdb.Open(log, filepath.Join(t.TempDir(), "roster.sqlite"))
		require.NoError(t, err)
	}
	s, err := NewServer(log, cfg, pipe, db)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func (s *Server) testRequest(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpRouter.ServeHTTP(rec, req)
	return rec
}

func testJPEG(t *testing.T) []byte {
	img := cimg.NewImage(320, 320, cimg.PixelFormatRGB)
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
	require.NoError(t, err)
	return jpg
}

func toJSON(t *testing.T, v any) []byte {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// Submit a frame and wait for it to be analyzed
func postFrame(t *testing.T, s *Server) uint64 {
	rec := s.testRequest("POST", "/api/frame", testJPEG(t))
	require.Equal(t, 200, rec.Code, rec.Body.String())
	seq := decodeBody[struct {
		Seq uint64 `json:"seq"`
	}](t, rec).Seq
	require.NotZero(t, seq)
	require.Eventually(t, func() bool {
		latest := s.worker.Latest()
		return latest != nil && latest.Seq == seq
	}, 5*time.Second, time.Millisecond)
	return seq
}

func TestFrameToTracks(t *testing.T) {
	s := newTestServer(t, false)

	// No frames yet
	rec := s.testRequest("GET", "/api/tracks", nil)
	require.Equal(t, 200, rec.Code)
	require.Len(t, decodeBody[analysis.Result](t, rec).Tracks, 0)

	postFrame(t, s)
	rec = s.testRequest("GET", "/api/tracks", nil)
	require.Equal(t, 200, rec.Code)
	result := decodeBody[analysis.Result](t, rec)
	require.Len(t, result.Tracks, 1)
	require.Equal(t, "10", result.Tracks[0].JerseyNumber)
	require.Equal(t, "Unknown #10", result.Tracks[0].Label())

	type status struct {
		Health pipeline.Health `json:"health"`
		Frames analysis.Stats  `json:"frames"`
		Roster []string        `json:"roster"`
	}
	rec = s.testRequest("GET", "/api/status", nil)
	require.Equal(t, 200, rec.Code)
	st := decodeBody[status](t, rec)
	require.Equal(t, pipeline.HealthOK, st.Health.State)
	require.EqualValues(t, 1, st.Frames.Processed)
	require.Nil(t, st.Roster)

	rec = s.testRequest("POST", "/api/reset", nil)
	require.Equal(t, 200, rec.Code)
	require.Len(t, s.pipeline.Tracks(), 0)
}

func TestBadFrame(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.testRequest("POST", "/api/frame", []byte("not a jpeg"))
	require.Equal(t, 400, rec.Code)
	require.EqualValues(t, 0, s.worker.Stats().Submitted)
}

func TestRosterWithoutDB(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.testRequest("GET", "/api/teams", nil)
	require.Equal(t, 400, rec.Code)

	// Loading a roster by team name needs the DB
	rec = s.testRequest("POST", "/api/roster", toJSON(t, map[string]any{"team": "Hawks"}))
	require.Equal(t, 400, rec.Code)

	rec = s.testRequest("POST", "/api/roster", toJSON(t, map[string]any{"team": "Hawks", "numbers": []string{"7"}}))
	require.Equal(t, 200, rec.Code)
	postFrame(t, s)
	require.Len(t, s.worker.Latest().Tracks, 0)

	rec = s.testRequest("DELETE", "/api/roster", nil)
	require.Equal(t, 200, rec.Code)
	postFrame(t, s)
	require.Len(t, s.worker.Latest().Tracks, 1)
}

func TestRosterWithDB(t *testing.T) {
	s := newTestServer(t, true)
	_, err := s.rosterDB.AddPlayer("Hawks", "10", "Kim", "Forward")
	require.NoError(t, err)

	rec := s.testRequest("GET", "/api/teams", nil)
	require.Equal(t, 200, rec.Code)
	require.Equal(t, []string{"Hawks"}, decodeBody[[]string](t, rec))

	rec = s.testRequest("GET", "/api/team/Hawks/players", nil)
	require.Equal(t, 200, rec.Code)
	players := decodeBody[[]roster.Profile](t, rec)
	require.Len(t, players, 1)
	require.Equal(t, "Kim", players[0].Name)

	rec = s.testRequest("POST", "/api/roster", toJSON(t, map[string]any{"team": "Owls"}))
	require.Equal(t, 404, rec.Code)

	rec = s.testRequest("POST", "/api/roster", toJSON(t, map[string]any{"team": "Hawks"}))
	require.Equal(t, 200, rec.Code)
	rec = s.testRequest("GET", "/api/roster", nil)
	require.Equal(t, 200, rec.Code)
	require.Equal(t, []string{"10"}, decodeBody[struct {
		Numbers []string `json:"numbers"`
	}](t, rec).Numbers)

	postFrame(t, s)
	tracks := s.worker.Latest().Tracks
	require.Len(t, tracks, 1)
	require.Equal(t, "#10 Kim", tracks[0].Label())
}

func TestInitialTeam(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	db, err := rosterdb.Open(log, filepath.Join(dir, "roster.sqlite"))
	require.NoError(t, err)
	_, err = db.AddPlayer("Hawks", "23", "Ana", "")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Team = "Hawks"
	detector := &fakeDetector{config: nn.ModelConfig{Width: 320, Height: 320, MaxDetections: 10}}
	s, err := NewServer(log, cfg, BuildPipeline(log, cfg, detector, &fakeText{}, pipeline.Callbacks{}), db)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	team, set := s.active()
	require.Equal(t, "Hawks", team)
	require.Equal(t, []string{"23"}, set.Numbers())
}

func TestStreamTracks(t *testing.T) {
	s := newTestServer(t, false)
	ts := httptest.NewServer(s.httpRouter)
	defer ts.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws/tracks", nil)
	require.NoError(t, err)
	defer c.Close()

	// The watcher is only registered once the upgrade completes, so keep sending frames until one arrives
	jpg := testJPEG(t)
	stop := make(chan bool)
	stopped := make(chan bool)
	go func() {
		defer close(stopped)
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				resp, err := http.Post(ts.URL+"/api/frame", "image/jpeg", bytes.NewReader(jpg))
				if err == nil {
					resp.Body.Close()
				}
			}
		}
	}()

	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	result := analysis.Result{}
	err = c.ReadJSON(&result)
	close(stop)
	<-stopped
	require.NoError(t, err)
	require.NotZero(t, result.Seq)
	require.Len(t, result.Tracks, 1)
	require.Equal(t, "10", result.Tracks[0].JerseyNumber)

	// Shutting down closes the stream
	s.Shutdown()
	for {
		if err = c.ReadJSON(&result); err != nil {
			break
		}
	}
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
}
