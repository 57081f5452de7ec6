package games

import _ "embed"

// Schema creates the tables the Postgres store reads and writes, and the
// trigger behind StatusListener.
//
//go:embed schema.sql
var Schema string
