package storage

import "testing"

func openMemDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedMatch(t *testing.T, db *DB) {
	t.Helper()
	exec := func(q string, args ...any) {
		if _, err := db.conn.Exec(q, args...); err != nil {
			t.Fatalf("seed exec %q: %v", q, err)
		}
	}
	exec(`INSERT INTO matches (match_id, tft_set_number) VALUES ('m1', 16)`)
	exec(`INSERT INTO player_matches (match_id, puuid, placement, traits) VALUES
		('m1', 'p1', 1, '[{"name":"TFT16_Demacia","tier":3,"num_units":5}]')`)
	exec(`INSERT INTO player_matches (match_id, puuid, placement, traits) VALUES
		('m1', 'p2', 8, '[]')`)
	exec(`INSERT INTO units (match_id, puuid, name, tier, rarity, items) VALUES
		('m1', 'p1', 'TFT16_Ashe', 2, 1, '["TFT_Item_InfinityEdge"]')`)
	exec(`INSERT INTO units (match_id, puuid, name, tier, rarity, items) VALUES
		('m1', 'p1', 'TFT16_Garen', 1, 0, '[]')`)
}

func TestReadMatchRows(t *testing.T) {
	db := openMemDB(t)
	seedMatch(t, db)

	rows, err := ReadMatchRows(db, 16)
	if err != nil {
		t.Fatalf("ReadMatchRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 player-match rows, got %d", len(rows))
	}

	first := rows[0]
	if first.Placement != 1 {
		t.Errorf("expected first row placement 1, got %d", first.Placement)
	}
	if len(first.Units) != 2 {
		t.Fatalf("expected 2 units on first row, got %d", len(first.Units))
	}
	if first.Units[0].Name != "TFT16_Ashe" || first.Units[0].Star != 2 || first.Units[0].Cost != 2 {
		t.Errorf("unexpected unit: %+v", first.Units[0])
	}
	if len(first.Units[0].Items) != 1 || first.Units[0].Items[0] != "TFT_Item_InfinityEdge" {
		t.Errorf("unexpected items: %+v", first.Units[0].Items)
	}
	if len(first.Traits) != 1 || first.Traits[0].Name != "TFT16_Demacia" || first.Traits[0].Tier != 3 {
		t.Errorf("unexpected traits: %+v", first.Traits)
	}

	second := rows[1]
	if second.Placement != 8 || len(second.Units) != 0 {
		t.Errorf("unexpected second row: %+v", second)
	}
}

func TestReadMatchRowsWrongSet(t *testing.T) {
	db := openMemDB(t)
	seedMatch(t, db)

	rows, err := ReadMatchRows(db, 15)
	if err != nil {
		t.Fatalf("ReadMatchRows: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows for unmatched set number, got %d", len(rows))
	}
}

func TestQueryRaw(t *testing.T) {
	db := openMemDB(t)
	seedMatch(t, db)

	cols, rows, err := db.QueryRaw(`SELECT match_id, placement FROM player_matches ORDER BY placement`)
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}
	if len(cols) != 2 || cols[0] != "match_id" {
		t.Errorf("unexpected columns: %v", cols)
	}
	if len(rows) != 2 || rows[0][1] != "1" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestSummary(t *testing.T) {
	db := openMemDB(t)
	seedMatch(t, db)

	s, err := db.Summary(16)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Matches != 1 || s.Players != 2 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
