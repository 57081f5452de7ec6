package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/livegame/wire"
	"github.com/mcdev12/courtside/go/internal/models"
)

var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand turns a scoreboard command into a mutation:
//
//	home +2         raw delta
//	away -1         raw delta
//	home 3 P1       attributed to player P1
//	end             end the game
func ParseCommand(line string) (wire.Mutation, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return wire.Mutation{}, ErrUnknownCommand
	}

	if strings.EqualFold(fields[0], "end") {
		return wire.Mutation{Kind: session.MutationEndGame}, nil
	}

	side := models.Side(strings.ToLower(fields[0]))
	if !side.Valid() || len(fields) < 2 || len(fields) > 3 {
		return wire.Mutation{}, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}

	points, err := strconv.Atoi(fields[1])
	if err != nil {
		return wire.Mutation{}, fmt.Errorf("points %q: %w", fields[1], err)
	}

	if len(fields) == 3 {
		return wire.Mutation{
			Kind:     session.MutationAttributed,
			Team:     side,
			Points:   points,
			PlayerID: fields[2],
		}, nil
	}
	return wire.Mutation{Kind: session.MutationRawDelta, Team: side, Points: points}, nil
}
