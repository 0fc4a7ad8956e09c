package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if s.config.Verbose {
				s.Log.Debugf("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	// Each endpoint gets its own limiter, keyed by client IP
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/status", s.httpStatus)
	handle("GET", "/api/tracks", s.httpTracks)
	handle("GET", "/api/ws/tracks", s.httpStreamTracks)
	ratelimited("POST", "/api/frame", s.httpPostFrame, 120, time.Second)
	ratelimited("POST", "/api/reset", s.httpReset, 10, time.Minute)

	handle("GET", "/api/roster", s.httpGetRoster)
	ratelimited("POST", "/api/roster", s.httpSetRoster, 30, time.Minute)
	ratelimited("DELETE", "/api/roster", s.httpClearRoster, 30, time.Minute)
	handle("GET", "/api/teams", s.httpListTeams)
	handle("GET", "/api/team/:team/players", s.httpListPlayers)

	s.httpRouter = router
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	www.SendJSON(w, &pingJSON{Time: time.Now().Unix()})
}
