// Package storage is the read-only boundary to the finished relational
// match snapshot. The ingestion pipeline that produces it (API client,
// rate limiter, scraping loop, ladder seeding) is an external
// collaborator: this package never writes `matches`, `player_matches`, or
// `units`. It opens the snapshot, reads it into []engine.MatchRow for the
// tokenizer, and exposes a raw-SQL passthrough for ad-hoc inspection.
package storage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/pable/smeecher/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a handle onto the ingest snapshot. The connection is opened
// read-write (see Open); this package's own queries only read from it.
type DB struct {
	conn *sql.DB
}

// Open opens the SQLite snapshot at path. The schema is applied with
// CREATE TABLE IF NOT EXISTS only, so opening a fixture database that
// doesn't exist yet (tests, local dev) still works; opening the real
// pipeline's snapshot is a no-op against its existing tables.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// traitJSON mirrors the {name, tier, num_units} shape the scraper writes
// into player_matches.traits.
type traitJSON struct {
	Name     string `json:"name"`
	Tier     int    `json:"tier"`
	NumUnits int    `json:"num_units"`
}

// ReadMatchRows streams every player-match for the given TFT set number
// into []engine.MatchRow, ready for engine.Build. Rows are ordered by
// player_matches.id so pm-id assignment is deterministic across rebuilds
// of the same snapshot.
//
// A single LEFT JOIN streaming query yields one row per (player-match,
// unit); the board is accumulated across the run of rows sharing a pm id.
func ReadMatchRows(db *DB, tftSetNumber int) ([]engine.MatchRow, error) {
	rows, err := db.conn.Query(`
		SELECT pm.id, pm.placement, pm.traits, u.name, u.tier, u.rarity, u.items
		FROM player_matches pm
		JOIN matches m ON m.match_id = pm.match_id
		LEFT JOIN units u ON u.match_id = pm.match_id AND u.puuid = pm.puuid
		WHERE m.tft_set_number = ?
		ORDER BY pm.id`, tftSetNumber)
	if err != nil {
		return nil, fmt.Errorf("query match rows: %w", err)
	}
	defer rows.Close()

	var out []engine.MatchRow
	var cur *engine.MatchRow
	var curID int64 = -1

	for rows.Next() {
		var pmID int64
		var placement int
		var traitsJSON sql.NullString
		var unitName, unitItems sql.NullString
		var unitTier, unitRarity sql.NullInt64

		if err := rows.Scan(&pmID, &placement, &traitsJSON, &unitName, &unitTier, &unitRarity, &unitItems); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}

		if pmID != curID {
			out = append(out, engine.MatchRow{Placement: placement})
			cur = &out[len(out)-1]
			curID = pmID
			if traitsJSON.Valid && traitsJSON.String != "" {
				var traits []traitJSON
				if err := json.Unmarshal([]byte(traitsJSON.String), &traits); err == nil {
					for _, t := range traits {
						cur.Traits = append(cur.Traits, engine.TraitEntry{Name: t.Name, Tier: t.Tier, NumUnits: t.NumUnits})
					}
				}
			}
		}

		if !unitName.Valid {
			continue // LEFT JOIN found no units for this player-match
		}
		var items []string
		if unitItems.Valid && unitItems.String != "" {
			json.Unmarshal([]byte(unitItems.String), &items) //nolint:errcheck
		}
		cur.Units = append(cur.Units, engine.UnitEntry{
			Name:  unitName.String,
			Star:  int(unitTier.Int64),
			Cost:  int(unitRarity.Int64) + 1, // API rarity is zero-based
			Items: items,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match rows: %w", err)
	}
	return out, nil
}

// QueryRaw runs an arbitrary SQL query against the snapshot and returns
// column names plus stringified rows, for the `sql` debug command. The
// query is not restricted to reads.
func (db *DB) QueryRaw(query string) (cols []string, result [][]string, err error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err = rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			row[i] = fmt.Sprintf("%v", v)
		}
		result = append(result, row)
	}
	return cols, result, rows.Err()
}

// Stats is a cheap pre-build sanity summary: how many matches/player-rows
// the snapshot holds for a given TFT set number.
type Stats struct {
	Matches int
	Players int
}

// Summary returns Stats for tftSetNumber.
func (db *DB) Summary(tftSetNumber int) (Stats, error) {
	var s Stats
	row := db.conn.QueryRow(`SELECT COUNT(*) FROM matches WHERE tft_set_number = ?`, tftSetNumber)
	if err := row.Scan(&s.Matches); err != nil {
		return s, fmt.Errorf("count matches: %w", err)
	}
	row = db.conn.QueryRow(`
		SELECT COUNT(*) FROM player_matches pm
		JOIN matches m ON m.match_id = pm.match_id
		WHERE m.tft_set_number = ?`, tftSetNumber)
	if err := row.Scan(&s.Players); err != nil {
		return s, fmt.Errorf("count players: %w", err)
	}
	return s, nil
}
