package sqlutil

import "github.com/jackc/pgx/v5/pgtype"

// Helper functions for converting nullable Postgres columns to Go pointers

// FromPgText converts pgtype.Text to a Go string pointer
func FromPgText(val pgtype.Text) *string {
	if !val.Valid {
		return nil
	}
	s := val.String
	return &s
}

// FromPgTextOr converts pgtype.Text to a Go string with default
func FromPgTextOr(val pgtype.Text, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// FromPgInt4 converts pgtype.Int4 to a Go int pointer
func FromPgInt4(val pgtype.Int4) *int {
	if !val.Valid {
		return nil
	}
	i := int(val.Int32)
	return &i
}

// FromPgInt4Or converts pgtype.Int4 to a Go int with default
func FromPgInt4Or(val pgtype.Int4, defaultVal int) int {
	if !val.Valid {
		return defaultVal
	}
	return int(val.Int32)
}
