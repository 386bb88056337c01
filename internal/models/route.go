package models

import "time"

// Route is a catalog entry as served by GET /api/routes
type Route struct {
	RouteID   string     `json:"routeId"`
	AgencyID  *string    `json:"agencyId,omitempty"`
	ShortName string     `json:"shortName"`
	LongName  string     `json:"longName"`
	Type      int        `json:"routeType"`
	Color     *string    `json:"color,omitempty"`
	TextColor *string    `json:"textColor,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// SelectedRoute is one route the tracker follows
type SelectedRoute struct {
	RouteID   string `json:"routeId" validate:"required"`
	ShortName string `json:"shortName,omitempty" validate:"omitempty,max=16"`
}

// RouteSelection is the body of GET/PUT /api/routes/selection
type RouteSelection struct {
	Routes []SelectedRoute `json:"routes" validate:"max=64,dive"`
}
