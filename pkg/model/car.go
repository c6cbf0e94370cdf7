package model

import "github.com/aarondl/opt/omitnull"

// CarPayload is the telemetry of a single car as sent by the simulator.
// Lap progress is either sent directly or has to be derived from the
// cumulative race time.
//
//nolint:tagliatelle // wire format
type CarPayload struct {
	Name           string                `json:"name"`
	Position       int                   `json:"position"`
	BatterySOC     float64               `json:"battery_soc"`
	TireLife       float64               `json:"tire_life"`
	FuelRemaining  float64               `json:"fuel_remaining"`
	Speed          float64               `json:"speed"`
	IsUserCar      bool                  `json:"is_user_car"`
	LapTime        omitnull.Val[float64] `json:"lap_time"`
	LastLapTime    omitnull.Val[float64] `json:"last_lap_time"`
	LapProgress    omitnull.Val[float64] `json:"lap_progress"`
	CumulativeTime omitnull.Val[float64] `json:"cumulative_time"`
}

//nolint:tagliatelle // wire format
type StrategyOption struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	WinProbability float64 `json:"win_probability"`
	Rationale      string  `json:"rationale"`
	Confidence     float64 `json:"confidence"`
}

type AvoidStrategy struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Risk string `json:"risk"`
}
