package rosterdb

import "github.com/cyclopcam/dbh"

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type Team struct {
	BaseModel
	Name string `json:"name"`
}

func (Team) TableName() string {
	return "team"
}

type Player struct {
	BaseModel
	TeamID   int64       `json:"teamID"`
	Number   string      `json:"number"` // Digits only. "0" and "00" are different numbers.
	Name     string      `json:"name"`
	Position string      `json:"position" gorm:"default:null"`
	AddedAt  dbh.IntTime `json:"addedAt"`
}

func (Player) TableName() string {
	return "player"
}
