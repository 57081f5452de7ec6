package games

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/mcdev12/courtside/go/internal/sqlutil"
)

// PostgresStore reads games and credits player points in Postgres
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const getGameQuery = `
	SELECT g.id, g.home_team_id, g.away_team_id, g.home_score, g.away_score,
	       g.status, g.venue, g.game_date, g.attendance, g.quarter, g.time_remaining
	FROM games g
	WHERE g.id = $1
`

const getTeamQuery = `
	SELECT id, name, description, founded_year, home_venue,
	       primary_color, secondary_color, coach_id, wins, losses, is_active
	FROM teams
	WHERE id = $1
`

const getRosterQuery = `
	SELECT id, team_id
	FROM players
	WHERE team_id = ANY($1)
`

func (s *PostgresStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	var (
		game                   models.Game
		homeTeamID, awayTeamID string
		venue, timeRemaining   pgtype.Text
		attendance, quarter    pgtype.Int4
		status                 string
	)

	err := s.db.QueryRow(ctx, getGameQuery, gameID).Scan(
		&game.ID, &homeTeamID, &awayTeamID, &game.HomeScore, &game.AwayScore,
		&status, &venue, &game.GameDate, &attendance, &quarter, &timeRemaining,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game %s: %w", gameID, session.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query game: %w", err)
	}
	game.Status = models.GameStatus(status)
	game.Venue = sqlutil.FromPgTextOr(venue, "")
	game.TimeRemaining = sqlutil.FromPgTextOr(timeRemaining, "")
	game.Attendance = sqlutil.FromPgInt4Or(attendance, 0)
	game.Quarter = sqlutil.FromPgInt4Or(quarter, 0)

	if game.HomeTeam, err = s.getTeam(ctx, homeTeamID); err != nil {
		return nil, err
	}
	if game.AwayTeam, err = s.getTeam(ctx, awayTeamID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, getRosterQuery, []string{homeTeamID, awayTeamID})
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var playerID, teamID string
		if err := rows.Scan(&playerID, &teamID); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		if teamID == homeTeamID {
			game.Roster.Home = append(game.Roster.Home, playerID)
		} else {
			game.Roster.Away = append(game.Roster.Away, playerID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}

	return &game, nil
}

func (s *PostgresStore) getTeam(ctx context.Context, teamID string) (models.Team, error) {
	var (
		team               models.Team
		description, venue pgtype.Text
		coachID            pgtype.Text
		foundedYear        pgtype.Int4
		primary, secondary pgtype.Text
	)

	err := s.db.QueryRow(ctx, getTeamQuery, teamID).Scan(
		&team.ID, &team.Name, &description, &foundedYear, &venue,
		&primary, &secondary, &coachID, &team.Stats.Wins, &team.Stats.Losses, &team.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return team, fmt.Errorf("team %s: %w", teamID, session.ErrNotFound)
	}
	if err != nil {
		return team, fmt.Errorf("query team: %w", err)
	}

	team.Description = sqlutil.FromPgText(description)
	team.HomeVenue = sqlutil.FromPgText(venue)
	team.CoachID = sqlutil.FromPgText(coachID)
	team.FoundedYear = sqlutil.FromPgInt4(foundedYear)
	team.Colors = models.TeamColors{
		Primary:   sqlutil.FromPgTextOr(primary, ""),
		Secondary: sqlutil.FromPgTextOr(secondary, ""),
	}
	return team, nil
}

const insertStatEventQuery = `
	INSERT INTO player_stat_events (event_id, player_id, points, applied_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (event_id) DO NOTHING
`

const addPlayerPointsQuery = `
	UPDATE players SET points = points + $1, updated_at = now() WHERE id = $2
`

const foreignKeyViolation = "23503"

// ApplyPlayerStatDelta records eventID and credits the player in one
// transaction. A replayed event id inserts nothing and leaves points alone.
func (s *PostgresStore) ApplyPlayerStatDelta(ctx context.Context, playerID string, points int, eventID string) (bool, error) {
	applied := false

	err := sqlutil.Run(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertStatEventQuery, eventID, playerID, points)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("player %s: %w", playerID, session.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("insert stat event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		tag, err = tx.Exec(ctx, addPlayerPointsQuery, points, playerID)
		if err != nil {
			return fmt.Errorf("update player points: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("player %s: %w", playerID, session.ErrNotFound)
		}
		applied = true
		return nil
	})
	if errors.Is(err, session.ErrNotFound) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", session.ErrTransientStorage, err)
	}
	return applied, nil
}
