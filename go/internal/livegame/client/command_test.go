package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/livegame/wire"
	"github.com/mcdev12/courtside/go/internal/models"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want wire.Mutation
	}{
		{"home +2", wire.Mutation{Kind: session.MutationRawDelta, Team: models.SideHome, Points: 2}},
		{"away -1", wire.Mutation{Kind: session.MutationRawDelta, Team: models.SideAway, Points: -1}},
		{"HOME 3 P1", wire.Mutation{Kind: session.MutationAttributed, Team: models.SideHome, Points: 3, PlayerID: "P1"}},
		{"end", wire.Mutation{Kind: session.MutationEndGame}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	for _, line := range []string{"", "middle +2", "home", "home two", "home 2 P1 extra", "cancel"} {
		_, err := ParseCommand(line)
		assert.Error(t, err, "line %q", line)
	}
}
