package rosterdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE team(
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		);
		CREATE UNIQUE INDEX idx_team_name ON team (name);

		CREATE TABLE player(
			id INTEGER PRIMARY KEY,
			team_id INT NOT NULL,
			number TEXT NOT NULL,
			name TEXT NOT NULL,
			position TEXT,
			added_at INT
		);
		CREATE UNIQUE INDEX idx_player_team_number ON player (team_id, number);
	`))

	return migs
}
