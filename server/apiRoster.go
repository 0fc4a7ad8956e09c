package server

import (
	"errors"
	"net/http"

	"github.com/cyclopcam/jerseyid/server/rosterdb"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) requireRosterDB() *rosterdb.RosterDB {
	if s.rosterDB == nil {
		www.PanicBadRequestf("%v", ErrNoRosterDB)
	}
	return s.rosterDB
}

// Map roster errors to HTTP status codes
func checkRosterErr(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, rosterdb.ErrTeamNotFound):
		www.Panic(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoRosterDB):
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)
}

func (s *Server) httpGetRoster(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type response struct {
		Team    string   `json:"team"`
		Numbers []string `json:"numbers"` // null when there is no roster constraint
	}
	team, set := s.active()
	resp := response{Team: team}
	if set != nil {
		resp.Numbers = set.Numbers()
	}
	www.SendJSON(w, &resp)
}

// Change the active team. If 'numbers' is omitted, the team's roster is loaded from the roster DB.
func (s *Server) httpSetRoster(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type request struct {
		Team    string   `json:"team"`
		Numbers []string `json:"numbers"`
	}
	req := request{}
	www.ReadJSON(w, r, &req, 1024*1024)
	if req.Team == "" {
		www.PanicBadRequestf("Team name is required")
	}
	checkRosterErr(s.SetRoster(req.Team, req.Numbers))
	www.SendOK(w)
}

func (s *Server) httpClearRoster(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.ClearRoster()
	www.SendOK(w)
}

func (s *Server) httpListTeams(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	teams, err := s.requireRosterDB().Teams()
	www.Check(err)
	names := make([]string, 0, len(teams))
	for _, t := range teams {
		names = append(names, t.Name)
	}
	www.SendJSON(w, names)
}

func (s *Server) httpListPlayers(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	players, err := s.requireRosterDB().Players(params.ByName("team"))
	www.Check(err)
	www.SendJSON(w, players)
}
