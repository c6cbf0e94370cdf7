package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aarondl/opt/omitnull"
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// Inbound is implemented by all frames the simulator sends to the client.
// The set of implementations is closed.
type Inbound interface {
	MessageType() MessageType
	inbound()
}

// Outbound is implemented by all frames the client sends to the simulator.
type Outbound interface {
	MessageType() MessageType
	outbound()
}

type validator interface {
	validate() error
}

//nolint:tagliatelle // wire format
type RaceStarted struct {
	SessionID string       `json:"session_id"`
	TotalLaps int          `json:"total_laps"`
	Player    *CarPayload  `json:"player"`
	Opponents []CarPayload `json:"opponents"`
}

//nolint:tagliatelle // wire format
type LapUpdate struct {
	Lap             int                `json:"lap"`
	Player          *CarPayload        `json:"player"`
	Opponents       []CarPayload       `json:"opponents"`
	IsRaining       omitnull.Val[bool] `json:"is_raining"`
	SafetyCarActive omitnull.Val[bool] `json:"safety_car_active"`
}

//nolint:tagliatelle // wire format
type DecisionPoint struct {
	EventType     EventType             `json:"event_type"`
	Lap           int                   `json:"lap"`
	Position      int                   `json:"position"`
	BatterySOC    float64               `json:"battery_soc"`
	TireLife      float64               `json:"tire_life"`
	FuelRemaining float64               `json:"fuel_remaining"`
	Recommended   []StrategyOption      `json:"recommended"`
	Avoid         *AvoidStrategy        `json:"avoid"`
	LatencyMs     omitnull.Val[float64] `json:"latency_ms"`
	UsedFallback  omitnull.Val[bool]    `json:"used_fallback"`
}

//nolint:tagliatelle // wire format
type StrategyApplied struct {
	StrategyID string `json:"strategy_id"`
}

// RaceComplete carries the final result. Additional attributes sent by the
// simulator are kept in Raw.
//
//nolint:tagliatelle // wire format
type RaceComplete struct {
	FinalPosition int             `json:"final_position"`
	Raw           json.RawMessage `json:"-"`
}

type ErrorMessage struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (*RaceStarted) MessageType() MessageType     { return MTRaceStarted }
func (*LapUpdate) MessageType() MessageType       { return MTLapUpdate }
func (*DecisionPoint) MessageType() MessageType   { return MTDecisionPoint }
func (*StrategyApplied) MessageType() MessageType { return MTStrategyApplied }
func (*RaceComplete) MessageType() MessageType    { return MTRaceComplete }
func (*ErrorMessage) MessageType() MessageType    { return MTError }

func (*RaceStarted) inbound()     {}
func (*LapUpdate) inbound()       {}
func (*DecisionPoint) inbound()   {}
func (*StrategyApplied) inbound() {}
func (*RaceComplete) inbound()    {}
func (*ErrorMessage) inbound()    {}

func (f *RaceStarted) validate() error {
	if f.Player == nil {
		return errors.New("player missing")
	}
	if f.TotalLaps < 0 {
		return fmt.Errorf("invalid total_laps %d", f.TotalLaps)
	}
	return nil
}

func (f *LapUpdate) validate() error {
	if f.Player == nil {
		return errors.New("player missing")
	}
	if f.Lap < 0 {
		return fmt.Errorf("invalid lap %d", f.Lap)
	}
	return nil
}

func (f *DecisionPoint) validate() error {
	if !f.EventType.Valid() {
		return fmt.Errorf("invalid event_type %q", f.EventType)
	}
	if len(f.Recommended) == 0 {
		return errors.New("no recommended strategies")
	}
	for i := range f.Recommended {
		if f.Recommended[i].ID == "" {
			return fmt.Errorf("recommended strategy %d has no id", i)
		}
	}
	return nil
}

func (f *StrategyApplied) validate() error {
	if f.StrategyID == "" {
		return errors.New("strategy_id missing")
	}
	return nil
}

func (f *RaceComplete) validate() error {
	if f.FinalPosition < 1 {
		return fmt.Errorf("invalid final_position %d", f.FinalPosition)
	}
	return nil
}

// DecodeInbound parses a text frame received from the simulator.
// Errors wrap either ErrMalformedFrame or ErrUnknownFrameType.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	var frame Inbound
	switch envelope.Type {
	case MTRaceStarted:
		frame = &RaceStarted{}
	case MTLapUpdate:
		frame = &LapUpdate{}
	case MTDecisionPoint:
		frame = &DecisionPoint{}
	case MTStrategyApplied:
		frame = &StrategyApplied{}
	case MTRaceComplete:
		frame = &RaceComplete{Raw: json.RawMessage(append([]byte(nil), data...))}
	case MTError:
		frame = &ErrorMessage{}
	case "":
		return nil, fmt.Errorf("%w: type missing", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrameType, envelope.Type)
	}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFrame, envelope.Type, err)
	}
	if v, ok := frame.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFrame, envelope.Type, err)
		}
	}
	return frame, nil
}

//nolint:tagliatelle // wire format
type StartGame struct {
	PlayerName   string `json:"player_name"`
	TotalLaps    int    `json:"total_laps"`
	RainLap      *int   `json:"rain_lap,omitempty"`
	SafetyCarLap *int   `json:"safety_car_lap,omitempty"`
}

//nolint:tagliatelle // wire format
type SelectStrategy struct {
	StrategyID string `json:"strategy_id"`
}

func (StartGame) MessageType() MessageType      { return MTStartGame }
func (SelectStrategy) MessageType() MessageType { return MTSelectStrategy }

func (StartGame) outbound()      {}
func (SelectStrategy) outbound() {}

func (f StartGame) MarshalJSON() ([]byte, error) {
	type alias StartGame
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		alias
	}{MTStartGame, alias(f)})
}

func (f SelectStrategy) MarshalJSON() ([]byte, error) {
	type alias SelectStrategy
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		alias
	}{MTSelectStrategy, alias(f)})
}

// EncodeOutbound produces the text frame for the given command
func EncodeOutbound(frame Outbound) ([]byte, error) {
	if frame == nil {
		return nil, errors.New("no frame")
	}
	return json.Marshal(frame)
}
