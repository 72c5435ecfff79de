package store

import (
	"time"

	"cragdb/api/internal/publish"
)

type User struct {
	ID                          string    `json:"id"`
	FullName                    string    `json:"fullName"`
	Email                       string    `json:"email"`
	Role                        string    `json:"role"`
	HasUnpublishedContributions bool      `json:"hasUnpublishedContributions"`
	CreatedAt                   time.Time `json:"createdAt"`
}

type Country struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
	Slug    string `json:"slug"`
	NrCrags int    `json:"nrCrags"`
}

type Peak struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	Height    *int    `json:"height,omitempty"`
	CountryID string  `json:"countryId"`
	AreaID    *string `json:"areaId,omitempty"`
}

type IceFall struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	CountryID string  `json:"countryId"`
	AreaID    *string `json:"areaId,omitempty"`
}

type Crag struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Type      string         `json:"type"`
	Lat       *float64       `json:"lat,omitempty"`
	Lon       *float64       `json:"lon,omitempty"`
	CountryID string         `json:"countryId"`
	AreaID    *string        `json:"areaId,omitempty"`
	PeakID    *string        `json:"peakId,omitempty"`
	IsHidden  bool           `json:"isHidden"`
	Status    publish.Status `json:"publishStatus"`
	UserID    *string        `json:"userId,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	// Only set by FindCrags.
	RouteCount *int `json:"routeCount,omitempty"`
}

type Sector struct {
	ID        string         `json:"id"`
	CragID    string         `json:"cragId"`
	Name      string         `json:"name"`
	Label     string         `json:"label"`
	Position  int            `json:"position"`
	Status    publish.Status `json:"publishStatus"`
	UserID    *string        `json:"userId,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type Route struct {
	ID          string         `json:"id"`
	CragID      string         `json:"cragId"`
	SectorID    string         `json:"sectorId"`
	RouteTypeID string         `json:"routeTypeId"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Difficulty  *float64       `json:"difficulty,omitempty"`
	Length      *int           `json:"length,omitempty"`
	Author      string         `json:"author"`
	IsProject   bool           `json:"isProject"`
	Position    int            `json:"position"`
	Status      publish.Status `json:"publishStatus"`
	UserID      *string        `json:"userId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type Pitch struct {
	ID         string   `json:"id"`
	RouteID    string   `json:"routeId"`
	Number     int      `json:"number"`
	Difficulty *float64 `json:"difficulty,omitempty"`
	Height     *int     `json:"height,omitempty"`
}

type DifficultyVote struct {
	ID         string    `json:"id"`
	RouteID    string    `json:"routeId"`
	UserID     *string   `json:"userId,omitempty"`
	Difficulty float64   `json:"difficulty"`
	IsBase     bool      `json:"isBase"`
	CreatedAt  time.Time `json:"createdAt"`
}

type StarRatingVote struct {
	ID      string `json:"id"`
	RouteID string `json:"routeId"`
	UserID  string `json:"userId"`
	Stars   int    `json:"stars"`
}

type Activity struct {
	ID     string    `json:"id"`
	CragID *string   `json:"cragId,omitempty"`
	UserID string    `json:"userId"`
	Type   string    `json:"type"`
	Name   string    `json:"name"`
	Date   time.Time `json:"date"`
}

// Ascent is one row of the ascent log (activity_route).
type Ascent struct {
	ID         string    `json:"id"`
	ActivityID *string   `json:"activityId,omitempty"`
	RouteID    string    `json:"routeId"`
	UserID     string    `json:"userId"`
	AscentType string    `json:"ascentType"`
	Publish    string    `json:"publish"`
	Date       time.Time `json:"date"`
	Notes      string    `json:"notes"`
}

type Comment struct {
	ID           string     `json:"id"`
	UserID       *string    `json:"userId,omitempty"`
	CragID       *string    `json:"cragId,omitempty"`
	RouteID      *string    `json:"routeId,omitempty"`
	IceFallID    *string    `json:"iceFallId,omitempty"`
	Type         string     `json:"type"`
	Content      string     `json:"content"`
	ExposedUntil *time.Time `json:"exposedUntil,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Club struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type ClubMember struct {
	ID     string `json:"id"`
	ClubID string `json:"clubId"`
	UserID string `json:"userId"`
	Admin  bool   `json:"admin"`
}

type PopularCrag struct {
	Crag     Crag `json:"crag"`
	NrVisits int  `json:"nrVisits"`
}

type RouteStats struct {
	RouteID    string `json:"routeId"`
	NrTicks    int    `json:"nrTicks"`
	NrTries    int    `json:"nrTries"`
	NrClimbers int    `json:"nrClimbers"`
}
