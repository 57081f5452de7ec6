package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mcdev12/courtside/go/internal/dbconfig"
	"github.com/mcdev12/courtside/go/internal/games"
	"github.com/mcdev12/courtside/go/internal/sqlutil"
)

type counts struct {
	inserted int
	skipped  int
}

func (c *counts) add(tag int64) {
	if tag == 1 {
		c.inserted++
	} else {
		c.skipped++
	}
}

func main() {
	path := flag.String("fixtures", "configs/fixtures.yaml", "fixtures file to load")
	applySchema := flag.Bool("schema", false, "create tables and triggers first")
	flag.Parse()

	// 1) Load the fixtures
	f, err := games.ReadFixtures(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	pool, err := dbconfig.Open(ctx, dbconfig.NewConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *applySchema {
		if _, err := pool.Exec(ctx, games.Schema); err != nil {
			fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
			os.Exit(1)
		}
	}

	// 3) Insert everything in one transaction, skipping existing rows
	var teams, players, gameRows counts
	err = sqlutil.Run(ctx, pool, func(tx pgx.Tx) error {
		for _, t := range f.Teams {
			tag, err := tx.Exec(ctx, `
				INSERT INTO teams (
				  id, name, description, founded_year, home_venue,
				  primary_color, secondary_color, coach_id, wins, losses, is_active
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
				ON CONFLICT (id) DO NOTHING
			`,
				t.ID, t.Name, t.Description, t.FoundedYear, t.HomeVenue,
				t.Colors.Primary, t.Colors.Secondary, t.CoachID, t.Stats.Wins, t.Stats.Losses, t.IsActive,
			)
			if err != nil {
				return fmt.Errorf("insert team %s: %w", t.ID, err)
			}
			teams.add(tag.RowsAffected())
		}

		for _, p := range f.Players {
			tag, err := tx.Exec(ctx, `
				INSERT INTO players (id, name, team_id, position, jersey_number, points, is_active)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (id) DO NOTHING
			`,
				p.ID, p.Name, p.TeamID, p.Position, p.JerseyNumber, p.Points, p.IsActive,
			)
			if err != nil {
				return fmt.Errorf("insert player %s: %w", p.ID, err)
			}
			players.add(tag.RowsAffected())
		}

		for _, g := range f.Games {
			date := g.GameDate
			if date.IsZero() {
				date = time.Now()
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO games (
				  id, home_team_id, away_team_id, home_score, away_score, status,
				  venue, game_date, attendance, quarter, time_remaining
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
				ON CONFLICT (id) DO NOTHING
			`,
				g.ID, g.HomeTeamID, g.AwayTeamID, g.HomeScore, g.AwayScore, string(g.Status),
				g.Venue, date, g.Attendance, g.Quarter, g.TimeRemaining,
			)
			if err != nil {
				return fmt.Errorf("insert game %s: %w", g.ID, err)
			}
			gameRows.add(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Seed complete: teams %d inserted, %d skipped; players %d inserted, %d skipped; games %d inserted, %d skipped\n",
		teams.inserted, teams.skipped, players.inserted, players.skipped, gameRows.inserted, gameRows.skipped,
	)
}
