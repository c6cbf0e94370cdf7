package session

import (
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/racesim-client/log"
	"github.com/mpapenbr/racesim-client/pkg/channel"
	"github.com/mpapenbr/racesim-client/pkg/model"
)

// used to derive the lap progress from the cumulative time if the car payload
// carries neither the progress nor a lap time
const defaultReferenceLapTime = 90.0

// Event is an input of the reducer: an inbound frame or a local command.
type Event interface {
	isEvent()
}

type FrameReceived struct {
	Frame model.Inbound
}

// ChooseStrategy resolves the active decision. If EventType is set the choice
// only applies to the decision of that event and lap.
type ChooseStrategy struct {
	StrategyID string
	Lap        int
	EventType  model.EventType
}

// Restart resets the session to its initial state
type Restart struct{}

type ConnectionChanged struct {
	State channel.ConnectionState
}

func (FrameReceived) isEvent()     {}
func (ChooseStrategy) isEvent()    {}
func (Restart) isEvent()           {}
func (ConnectionChanged) isEvent() {}

// Reduce computes the next session for the given event. The returned frames
// have to be sent to the simulator by the caller.
// Reduce never modifies s.
func Reduce(s Session, ev Event) (Session, []model.Outbound) {
	switch e := ev.(type) {
	case FrameReceived:
		return reduceFrame(s, e.Frame), nil
	case ChooseStrategy:
		return chooseStrategy(s, e)
	case Restart:
		next := Initial()
		next.SessionID = s.SessionID
		next.ConnectionState = s.ConnectionState
		return next, nil
	case ConnectionChanged:
		s.ConnectionState = e.State
		return s, nil
	default:
		log.Warn("ignoring unknown event", log.Any("event", ev))
		return s, nil
	}
}

//nolint:cyclop // by design
func reduceFrame(s Session, frame model.Inbound) Session {
	switch f := frame.(type) {
	case *model.RaceStarted:
		return raceStarted(s, f)
	case *model.LapUpdate:
		if !s.RaceStarted {
			log.Debug("ignoring lap update", log.String("race", s.RaceState().String()))
			return s
		}
		return lapUpdate(s, f)
	case *model.DecisionPoint:
		if !s.RaceStarted || s.RaceComplete {
			log.Debug("ignoring decision point", log.String("race", s.RaceState().String()))
			return s
		}
		if s.ActiveDecision != nil {
			// latest wins, the pending one is dropped without history entry
			log.Info("replacing unresolved decision",
				log.String("pending", string(s.ActiveDecision.EventType)),
				log.Int("pendingLap", s.ActiveDecision.Lap),
				log.String("new", string(f.EventType)))
		}
		s.ActiveDecision = decisionFromFrame(f)
		return s
	case *model.StrategyApplied:
		log.Debug("strategy applied", log.String("strategy", f.StrategyID))
		s.ActiveDecision = nil
		return s
	case *model.RaceComplete:
		if !s.RaceStarted || s.RaceComplete {
			log.Debug("ignoring race complete", log.String("race", s.RaceState().String()))
			return s
		}
		s.RaceComplete = true
		s.FinalPosition = f.FinalPosition
		s.ActiveDecision = nil
		return s
	case *model.ErrorMessage:
		log.Warn("simulator reported error",
			log.String("message", f.Message),
			log.String("details", string(f.Details)))
		s.LastError = f.Message
		return s
	default:
		log.Warn("ignoring unsupported frame", log.Any("frame", frame))
		return s
	}
}

func raceStarted(s Session, f *model.RaceStarted) Session {
	next := Initial()
	next.SessionID = s.SessionID
	if f.SessionID != "" {
		next.SessionID = f.SessionID
	}
	next.ConnectionState = s.ConnectionState
	next.RaceStarted = true
	next.TotalLaps = f.TotalLaps
	next.Player = playerFromPayload(f.Player)
	next.Opponents = opponentsFromPayload(f.Opponents)
	return next
}

// lap updates replace the cars wholesale, nothing of the previous snapshot is kept
func lapUpdate(s Session, f *model.LapUpdate) Session {
	lap := f.Lap
	if s.TotalLaps > 0 && lap > s.TotalLaps {
		log.Warn("lap exceeds total laps",
			log.Int("lap", lap), log.Int("totalLaps", s.TotalLaps))
		lap = s.TotalLaps
	}
	s.CurrentLap = lap
	s.Player = playerFromPayload(f.Player)
	s.Opponents = opponentsFromPayload(f.Opponents)
	s.IsRaining = f.IsRaining.GetOr(false)
	s.SafetyCarActive = f.SafetyCarActive.GetOr(false)
	return s
}

func chooseStrategy(s Session, cmd ChooseStrategy) (Session, []model.Outbound) {
	if s.ActiveDecision == nil {
		log.Warn("no active decision, ignoring strategy choice",
			log.String("strategy", cmd.StrategyID))
		return s, nil
	}
	if cmd.StrategyID == "" {
		log.Warn("empty strategy id, ignoring strategy choice")
		return s, nil
	}
	d := s.ActiveDecision
	if cmd.EventType != "" && (cmd.EventType != d.EventType || cmd.Lap != d.Lap) {
		log.Warn("strategy choice for a replaced decision, ignoring",
			log.String("strategy", cmd.StrategyID),
			log.String("event", string(cmd.EventType)),
			log.Int("lap", cmd.Lap),
			log.String("activeEvent", string(d.EventType)),
			log.Int("activeLap", d.Lap))
		return s, nil
	}
	rec := DecisionRecord{
		Lap:        d.Lap,
		EventType:  d.EventType,
		StrategyID: cmd.StrategyID,
	}
	if opt, ok := lo.Find(d.Recommended, func(o StrategyOption) bool {
		return o.ID == cmd.StrategyID
	}); ok {
		rec.StrategyName = opt.Name
		rec.Recommended = true
	} else if d.Avoid != nil && d.Avoid.ID == cmd.StrategyID {
		rec.StrategyName = d.Avoid.Name
		rec.Discouraged = true
	}
	s.DecisionHistory = append(slices.Clone(s.DecisionHistory), rec)
	// cleared without waiting for STRATEGY_APPLIED
	s.ActiveDecision = nil
	return s, []model.Outbound{model.SelectStrategy{StrategyID: cmd.StrategyID}}
}

func decisionFromFrame(f *model.DecisionPoint) *DecisionPoint {
	d := &DecisionPoint{
		EventType:     f.EventType,
		Lap:           f.Lap,
		Position:      f.Position,
		BatterySOC:    f.BatterySOC,
		TireLife:      f.TireLife,
		FuelRemaining: f.FuelRemaining,
		Recommended: lo.Map(f.Recommended, func(o model.StrategyOption, _ int) StrategyOption {
			return StrategyOption(o)
		}),
		LatencyMs:    f.LatencyMs.GetOr(0),
		UsedFallback: f.UsedFallback.GetOr(false),
	}
	if f.Avoid != nil {
		avoid := AvoidStrategy(*f.Avoid)
		d.Avoid = &avoid
	}
	return d
}

func playerFromPayload(p *model.CarPayload) *CarState {
	if p == nil {
		return nil
	}
	c := carStateFromPayload(p)
	c.IsUserCar = true
	return &c
}

func opponentsFromPayload(opponents []model.CarPayload) []CarState {
	cars := lo.Map(opponents, func(p model.CarPayload, _ int) CarState {
		c := carStateFromPayload(&p)
		c.IsUserCar = false
		return c
	})
	// identity is the name, the first entry wins. Unnamed cars are all kept.
	seen := make(map[string]struct{}, len(cars))
	return lo.Filter(cars, func(c CarState, _ int) bool {
		if c.Name == "" {
			return true
		}
		if _, ok := seen[c.Name]; ok {
			return false
		}
		seen[c.Name] = struct{}{}
		return true
	})
}

func carStateFromPayload(p *model.CarPayload) CarState {
	return CarState{
		Name:          p.Name,
		Position:      p.Position,
		LapProgress:   lapProgress(p),
		Speed:         p.Speed,
		BatterySOC:    p.BatterySOC,
		TireLife:      p.TireLife,
		FuelRemaining: p.FuelRemaining,
		LapTime:       p.LapTime.GetOr(0),
		LastLapTime:   p.LastLapTime.GetOr(0),
	}
}

// lapProgress prefers the progress sent by the simulator. Otherwise it is
// derived from the cumulative race time and a reference lap time.
func lapProgress(p *model.CarPayload) float64 {
	if v, ok := p.LapProgress.Get(); ok {
		return fraction(v)
	}
	ct, ok := p.CumulativeTime.Get()
	if !ok {
		return 0
	}
	ref := p.LastLapTime.GetOr(0)
	if ref <= 0 {
		ref = p.LapTime.GetOr(0)
	}
	if ref <= 0 {
		ref = defaultReferenceLapTime
	}
	return fraction(ct / ref)
}

func fraction(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v - math.Floor(v)
}
