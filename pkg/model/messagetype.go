package model

type MessageType string

// client -> server
const (
	MTStartGame      MessageType = "START_GAME"
	MTSelectStrategy MessageType = "SELECT_STRATEGY"
)

// server -> client
const (
	MTRaceStarted     MessageType = "RACE_STARTED"
	MTLapUpdate       MessageType = "LAP_UPDATE"
	MTDecisionPoint   MessageType = "DECISION_POINT"
	MTStrategyApplied MessageType = "STRATEGY_APPLIED"
	MTRaceComplete    MessageType = "RACE_COMPLETE"
	MTError           MessageType = "ERROR"
)

// EventType is the trigger of a decision point
type EventType string

const (
	EventRainStart           EventType = "RAIN_START"
	EventBatteryLow          EventType = "BATTERY_LOW"
	EventTireDegraded        EventType = "TIRE_DEGRADED"
	EventSafetyCar           EventType = "SAFETY_CAR"
	EventOvertakeOpportunity EventType = "OVERTAKE_OPPORTUNITY"
	EventCheckpoint          EventType = "CHECKPOINT"
)

var knownEventTypes = map[EventType]struct{}{
	EventRainStart:           {},
	EventBatteryLow:          {},
	EventTireDegraded:        {},
	EventSafetyCar:           {},
	EventOvertakeOpportunity: {},
	EventCheckpoint:          {},
}

func (e EventType) Valid() bool {
	_, ok := knownEventTypes[e]
	return ok
}
