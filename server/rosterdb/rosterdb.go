// Package rosterdb stores team rosters in sqlite, and resolves jersey numbers to player profiles.
package rosterdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/jerseyid/pkg/jersey"
	"github.com/cyclopcam/jerseyid/pkg/roster"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

var ErrInvalidNumber = errors.New("Invalid jersey number")
var ErrDuplicateNumber = errors.New("Jersey number is already taken on this team")
var ErrTeamNotFound = errors.New("Team not found")

const maxNumberDigits = 2

type RosterDB struct {
	log logs.Log
	DB  *gorm.DB
}

// Open or create the roster database
func Open(log logs.Log, dbFilename string) (*RosterDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbFilename), 0770); err != nil {
		return nil, fmt.Errorf("Failed to create roster DB directory: %w", err)
	}
	log.Infof("Opening roster DB at '%v'", dbFilename)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open roster database %v: %w", dbFilename, err)
	}
	return &RosterDB{
		log: log,
		DB:  db,
	}, nil
}

func (r *RosterDB) Close() {
	if sqlDB, err := r.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// A jersey number is one or two digits. Leading zeros are significant.
func validateNumber(number string) error {
	if number == "" || len(number) > maxNumberDigits || jersey.NormalizeDigits(number) != number {
		return fmt.Errorf("%w: '%v'", ErrInvalidNumber, number)
	}
	return nil
}

// Return the team with the given name, creating it if necessary
func findOrCreateTeam(tx *gorm.DB, name string) (*Team, error) {
	team := Team{}
	if err := tx.Where("name = ?", name).Limit(1).Find(&team).Error; err != nil {
		return nil, err
	}
	if team.ID != 0 {
		return &team, nil
	}
	team.Name = name
	if err := tx.Create(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *RosterDB) Teams() ([]Team, error) {
	teams := []Team{}
	if err := r.DB.Order("name").Find(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}

// AddPlayer adds a player to a team, creating the team if it doesn't exist yet
func (r *RosterDB) AddPlayer(team, number, name, position string) (*roster.Profile, error) {
	if err := validateNumber(number); err != nil {
		return nil, err
	}
	if team == "" {
		return nil, fmt.Errorf("%w: team name is empty", ErrTeamNotFound)
	}
	var profile *roster.Profile
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		t, err := findOrCreateTeam(tx, team)
		if err != nil {
			return err
		}
		n := int64(0)
		if err := tx.Model(&Player{}).Where("team_id = ? AND number = ?", t.ID, number).Count(&n).Error; err != nil {
			return err
		}
		if n != 0 {
			return fmt.Errorf("%w: #%v on %v", ErrDuplicateNumber, number, team)
		}
		p := Player{
			TeamID:   t.ID,
			Number:   number,
			Name:     name,
			Position: position,
			AddedAt:  dbh.MakeIntTime(time.Now()),
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		profile = toProfile(&p, team)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// RemovePlayer removes a number from a team's roster.
// Removing a number that isn't on the roster is not an error.
func (r *RosterDB) RemovePlayer(team, number string) error {
	return r.DB.Exec("DELETE FROM player WHERE number = ? AND team_id IN (SELECT id FROM team WHERE name = ?)", number, team).Error
}

// LookupProfile returns nil, nil if there is no such player
func (r *RosterDB) LookupProfile(number, team string) (*roster.Profile, error) {
	players := []Player{}
	err := r.DB.Raw(`SELECT player.* FROM player INNER JOIN team ON team.id = player.team_id
		WHERE team.name = ? AND player.number = ? LIMIT 1`, team, number).Scan(&players).Error
	if err != nil {
		return nil, fmt.Errorf("Failed to look up #%v on %v: %w", number, team, err)
	}
	if len(players) == 0 {
		return nil, nil
	}
	return toProfile(&players[0], team), nil
}

// Players returns the roster of a team, ordered by number
func (r *RosterDB) Players(team string) ([]roster.Profile, error) {
	players := []Player{}
	err := r.DB.Raw(`SELECT player.* FROM player INNER JOIN team ON team.id = player.team_id
		WHERE team.name = ? ORDER BY player.number`, team).Scan(&players).Error
	if err != nil {
		return nil, err
	}
	profiles := make([]roster.Profile, len(players))
	for i := range players {
		profiles[i] = *toProfile(&players[i], team)
	}
	return profiles, nil
}

// RosterSet returns the set of valid numbers for a team.
// If the team doesn't exist, the error is ErrTeamNotFound.
func (r *RosterDB) RosterSet(team string) (*roster.Set, error) {
	t := Team{}
	if err := r.DB.Where("name = ?", team).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, fmt.Errorf("%w: %v", ErrTeamNotFound, team)
	}
	numbers := []string{}
	if err := r.DB.Model(&Player{}).Where("team_id = ?", t.ID).Pluck("number", &numbers).Error; err != nil {
		return nil, err
	}
	return roster.NewSet(team, numbers), nil
}

func toProfile(p *Player, team string) *roster.Profile {
	return &roster.Profile{
		ID:       p.ID,
		Team:     team,
		Number:   p.Number,
		Name:     p.Name,
		Position: p.Position,
	}
}
