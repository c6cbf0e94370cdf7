package session

import (
	"slices"

	"github.com/mpapenbr/racesim-client/pkg/channel"
	"github.com/mpapenbr/racesim-client/pkg/model"
)

// CarState is the telemetry snapshot of one car as of the latest lap update.
// LapProgress is in [0,1).
type CarState struct {
	Name          string  `json:"name"`
	Position      int     `json:"position"`
	LapProgress   float64 `json:"lapProgress"`
	Speed         float64 `json:"speed"`
	BatterySOC    float64 `json:"batterySoc"`
	TireLife      float64 `json:"tireLife"`
	FuelRemaining float64 `json:"fuelRemaining"`
	LapTime       float64 `json:"lapTime,omitempty"`
	LastLapTime   float64 `json:"lastLapTime,omitempty"`
	IsUserCar     bool    `json:"isUserCar"`
}

type StrategyOption struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	WinProbability float64 `json:"winProbability"`
	Rationale      string  `json:"rationale"`
	Confidence     float64 `json:"confidence"`
}

type AvoidStrategy struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Risk string `json:"risk"`
}

// DecisionPoint is a pending strategic choice
type DecisionPoint struct {
	EventType     model.EventType  `json:"eventType"`
	Lap           int              `json:"lap"`
	Position      int              `json:"position"`
	BatterySOC    float64          `json:"batterySoc"`
	TireLife      float64          `json:"tireLife"`
	FuelRemaining float64          `json:"fuelRemaining"`
	Recommended   []StrategyOption `json:"recommended"`
	Avoid         *AvoidStrategy   `json:"avoid,omitempty"`
	LatencyMs     float64          `json:"latencyMs,omitempty"`
	UsedFallback  bool             `json:"usedFallback,omitempty"`
}

// DecisionRecord is an entry of the decision history
type DecisionRecord struct {
	Lap          int             `json:"lap"`
	EventType    model.EventType `json:"eventType"`
	StrategyID   string          `json:"strategyId"`
	StrategyName string          `json:"strategyName,omitempty"`
	Recommended  bool            `json:"recommended"` // the choice was one of the recommendations
	Discouraged  bool            `json:"discouraged"` // the choice was the strategy to avoid
}

type RaceState int

const (
	Idle RaceState = iota
	Started
	Complete
)

func (r RaceState) String() string {
	switch r {
	case Idle:
		return "idle"
	case Started:
		return "started"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Session is the client side state of one race.
// Values are never modified in place by the reducer, a Session obtained from
// a snapshot may be read concurrently but must not be modified.
type Session struct {
	SessionID       string                  `json:"sessionId"`
	ConnectionState channel.ConnectionState `json:"connectionState"`
	RaceStarted     bool                    `json:"raceStarted"`
	RaceComplete    bool                    `json:"raceComplete"`
	CurrentLap      int                     `json:"currentLap"`
	TotalLaps       int                     `json:"totalLaps"`
	Player          *CarState               `json:"player,omitempty"`
	Opponents       []CarState              `json:"opponents"`
	IsRaining       bool                    `json:"isRaining"`
	SafetyCarActive bool                    `json:"safetyCarActive"`
	ActiveDecision  *DecisionPoint          `json:"activeDecision,omitempty"`
	DecisionHistory []DecisionRecord        `json:"decisionHistory"`
	FinalPosition   int                     `json:"finalPosition,omitempty"` // 0 until the race is complete
	LastError       string                  `json:"lastError,omitempty"`
}

// Initial returns the session before any race was started
func Initial() Session {
	return Session{
		ConnectionState: channel.Disconnected,
		Opponents:       []CarState{},
		DecisionHistory: []DecisionRecord{},
	}
}

func (s Session) RaceState() RaceState {
	switch {
	case s.RaceComplete:
		return Complete
	case s.RaceStarted:
		return Started
	default:
		return Idle
	}
}

func (s Session) HasActiveDecision() bool {
	return s.ActiveDecision != nil
}

// OpponentsByPosition returns the opponents ordered for display
func (s Session) OpponentsByPosition() []CarState {
	ret := slices.Clone(s.Opponents)
	slices.SortStableFunc(ret, func(a, b CarState) int {
		return a.Position - b.Position
	})
	return ret
}

// Cars returns the player (if present) followed by the opponents
func (s Session) Cars() []CarState {
	ret := make([]CarState, 0, len(s.Opponents)+1)
	if s.Player != nil {
		ret = append(ret, *s.Player)
	}
	return append(ret, s.Opponents...)
}
