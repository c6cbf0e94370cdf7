package play

import (
	"fmt"
	"io"
	"strings"

	"github.com/mpapenbr/racesim-client/pkg/geometry"
	"github.com/mpapenbr/racesim-client/pkg/session"
	"github.com/mpapenbr/racesim-client/pkg/track"
)

// printer writes the changes between consecutive snapshots to out
type printer struct {
	out           io.Writer
	path          *geometry.Path
	withPositions bool
	prev          session.Session
}

func newPrinter(out io.Writer, path *geometry.Path, withPositions bool) *printer {
	return &printer{
		out:           out,
		path:          path,
		withPositions: withPositions,
		prev:          session.Initial(),
	}
}

//nolint:errcheck // output to terminal
func (p *printer) update(s session.Session) {
	defer func() { p.prev = s }()

	if s.LastError != "" && s.LastError != p.prev.LastError {
		fmt.Fprintf(p.out, "Simulator error: %s\n", s.LastError)
	}
	if !s.RaceStarted {
		return
	}
	if !p.prev.RaceStarted {
		fmt.Fprintf(p.out, "Race started: session %s, %d laps, %d opponents\n",
			s.SessionID, s.TotalLaps, len(s.Opponents))
	}
	if s.CurrentLap != p.prev.CurrentLap {
		p.lap(s)
	}
	if len(s.DecisionHistory) > len(p.prev.DecisionHistory) {
		rec := s.DecisionHistory[len(s.DecisionHistory)-1]
		fmt.Fprintf(p.out, "  chose %s\n", strategyLabel(rec))
	}
	if s.ActiveDecision != nil && s.ActiveDecision != p.prev.ActiveDecision {
		p.decision(s.ActiveDecision)
	}
	if s.RaceComplete && !p.prev.RaceComplete {
		p.complete(s)
	}
}

//nolint:errcheck // output to terminal
func (p *printer) lap(s session.Session) {
	var flags []string
	if s.IsRaining {
		flags = append(flags, "rain")
	}
	if s.SafetyCarActive {
		flags = append(flags, "safety car")
	}
	line := fmt.Sprintf("Lap %d/%d", s.CurrentLap, s.TotalLaps)
	if s.Player != nil {
		line += fmt.Sprintf(" P%d battery %.0f%% tires %.0f%% fuel %.0f%%",
			s.Player.Position, s.Player.BatterySOC, s.Player.TireLife, s.Player.FuelRemaining)
	}
	if len(flags) > 0 {
		line += " [" + strings.Join(flags, ", ") + "]"
	}
	fmt.Fprintln(p.out, line)

	if !p.withPositions || p.path == nil {
		return
	}
	for _, cp := range track.Resolve(p.path, s) {
		marker := " "
		if cp.IsUserCar {
			marker = "*"
		}
		fmt.Fprintf(p.out, "  %s P%-2d %-20s (%7.2f, %7.2f)\n",
			marker, cp.Position, cp.Name, cp.Point.X, cp.Point.Y)
	}
}

//nolint:errcheck // output to terminal
func (p *printer) decision(d *session.DecisionPoint) {
	fmt.Fprintf(p.out, "Decision on lap %d: %s (P%d battery %.0f%% tires %.0f%% fuel %.0f%%)\n",
		d.Lap, d.EventType, d.Position, d.BatterySOC, d.TireLife, d.FuelRemaining)
	for i, o := range d.Recommended {
		fmt.Fprintf(p.out, "  [%d] %s (%s) win %.0f%% confidence %.0f%%\n",
			i, o.Name, o.ID, o.WinProbability*100, o.Confidence*100)
		if o.Rationale != "" {
			fmt.Fprintf(p.out, "      %s\n", o.Rationale)
		}
	}
	if d.Avoid != nil {
		fmt.Fprintf(p.out, "  avoid: %s (%s) risk %s\n", d.Avoid.Name, d.Avoid.ID, d.Avoid.Risk)
	}
	if d.UsedFallback {
		fmt.Fprintln(p.out, "  (fallback recommendations)")
	}
	fmt.Fprintln(p.out, "  enter index or strategy id:")
}

//nolint:errcheck // output to terminal
func (p *printer) notice(msg string) {
	fmt.Fprintf(p.out, "  %s\n", msg)
}

//nolint:errcheck // output to terminal
func (p *printer) complete(s session.Session) {
	fmt.Fprintf(p.out, "Race complete: final position P%d\n", s.FinalPosition)
	for _, rec := range s.DecisionHistory {
		fmt.Fprintf(p.out, "  lap %d %s: %s\n", rec.Lap, rec.EventType, strategyLabel(rec))
	}
}

func strategyLabel(rec session.DecisionRecord) string {
	label := rec.StrategyID
	if rec.StrategyName != "" {
		label = fmt.Sprintf("%s (%s)", rec.StrategyName, rec.StrategyID)
	}
	switch {
	case rec.Recommended:
		return label + " [recommended]"
	case rec.Discouraged:
		return label + " [discouraged]"
	default:
		return label
	}
}
