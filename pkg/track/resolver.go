// Package track maps the lap progress of the cars onto a circuit's path.
package track

import (
	"github.com/samber/lo"

	"github.com/mpapenbr/racesim-client/pkg/geometry"
	"github.com/mpapenbr/racesim-client/pkg/session"
)

type CarPosition struct {
	Name      string         `json:"name"`
	Position  int            `json:"position"`
	Point     geometry.Point `json:"point"`
	IsUserCar bool           `json:"isUserCar"`
}

// Resolve computes the screen positions of all cars in s.
// The player comes first, the opponents follow ordered by race position.
// path is only read and may be shared between goroutines.
func Resolve(path *geometry.Path, s session.Session) []CarPosition {
	toPos := func(c session.CarState, _ int) CarPosition {
		return CarPosition{
			Name:      c.Name,
			Position:  c.Position,
			Point:     path.PointAtFraction(c.LapProgress),
			IsUserCar: c.IsUserCar,
		}
	}
	ret := make([]CarPosition, 0, len(s.Opponents)+1)
	if s.Player != nil {
		ret = append(ret, toPos(*s.Player, 0))
	}
	return append(ret, lo.Map(s.OpponentsByPosition(), toPos)...)
}
