// Package server exposes the jersey identification pipeline over HTTP.
//
// Frames are POSTed as JPEG images, and the tracked players are available by polling,
// or as a stream over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/jerseyid/pkg/roster"
	"github.com/cyclopcam/jerseyid/server/analysis"
	"github.com/cyclopcam/jerseyid/server/config"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/rosterdb"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var ErrNoRosterDB = errors.New("No roster database is configured")

type Server struct {
	Log              logs.Log
	ShutdownComplete chan bool // Closed when Shutdown has finished

	config       *config.Config
	pipeline     *pipeline.Pipeline
	worker       *analysis.Worker
	rosterDB     *rosterdb.RosterDB // nil if not configured
	signalIn     chan os.Signal
	httpServer   *http.Server
	httpRouter   *httprouter.Router
	wsUpgrader   websocket.Upgrader
	startedAt    time.Time
	shutdownOnce sync.Once

	activeLock sync.Mutex
	team       string      // Active team. Blank means no team.
	roster     *roster.Set // Valid numbers of the active team. Nil means no constraint.
}

// NewServer takes ownership of the pipeline and the roster DB (which may be nil)
func NewServer(log logs.Log, cfg *config.Config, pipe *pipeline.Pipeline, rosterDB *rosterdb.RosterDB) (*Server, error) {
	s := &Server{
		Log:              log,
		ShutdownComplete: make(chan bool),
		config:           cfg,
		pipeline:         pipe,
		rosterDB:         rosterDB,
		startedAt:        time.Now(),
	}
	if cfg.Team != "" {
		if rosterDB != nil {
			if err := s.SetRoster(cfg.Team, nil); err != nil {
				if !errors.Is(err, rosterdb.ErrTeamNotFound) {
					return nil, err
				}
				s.Log.Warnf("Team '%v' has no roster. Numbers will not be filtered", cfg.Team)
				s.setActive(cfg.Team, nil)
			}
		} else {
			s.setActive(cfg.Team, nil)
		}
	}
	s.worker = analysis.NewWorker(log, pipe, s.frameContext, nil)
	s.setupHttpRoutes()
	return s, nil
}

// SetRoster changes the active team.
// If numbers is nil, the roster is loaded from the roster DB.
func (s *Server) SetRoster(team string, numbers []string) error {
	if team == "" {
		return fmt.Errorf("%w: team name is empty", rosterdb.ErrTeamNotFound)
	}
	var set *roster.Set
	if numbers != nil {
		set = roster.NewSet(team, numbers)
	} else {
		if s.rosterDB == nil {
			return ErrNoRosterDB
		}
		var err error
		set, err = s.rosterDB.RosterSet(team)
		if err != nil {
			return err
		}
	}
	s.Log.Infof("Active team is now '%v', with %v numbers on the roster", team, set.Len())
	s.setActive(team, set)
	return nil
}

// ClearRoster removes the active team, so that all numbers are accepted
func (s *Server) ClearRoster() {
	s.Log.Infof("Active team cleared")
	s.setActive("", nil)
}

func (s *Server) setActive(team string, set *roster.Set) {
	s.activeLock.Lock()
	defer s.activeLock.Unlock()
	s.team = team
	s.roster = set
}

func (s *Server) active() (string, *roster.Set) {
	s.activeLock.Lock()
	defer s.activeLock.Unlock()
	return s.team, s.roster
}

// frameContext is read by the analysis worker before every frame
func (s *Server) frameContext() pipeline.Context {
	team, set := s.active()
	ctx := pipeline.Context{
		Roster:                         set,
		Team:                           team,
		DetectionConfidenceThreshold:   s.config.DetectionConfidenceThreshold,
		RecognitionConfidenceThreshold: s.config.RecognitionConfidenceThreshold,
	}
	if s.rosterDB != nil && team != "" {
		ctx.Lookup = s.rosterDB
	}
	return ctx
}

// addr example: ":8090"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// Shutdown() was called by somebody else, and closed signalIn
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown stops the HTTP server and the analysis worker, and closes the model and roster DB.
// It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	var err error
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.httpServer.Shutdown(ctx)
		cancel()
	}
	s.worker.Close()
	s.pipeline.Close()
	if s.rosterDB != nil {
		s.rosterDB.Close()
	}
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	close(s.ShutdownComplete)
}
