package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/breakout/events"
)

// SQLite persists all three journals in one database file per engine. The
// events table is append-only; row inserts are transactional, so a torn
// write can never surface as a half-record on recovery.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps per-key serialization trivial under go-sqlite3.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) UpsertStream(r StreamRecord) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO stream_journal
		(trading_date, stream, state, range_locked, range_high, range_low, freeze_close,
		 long_level, short_level, brackets_submitted, entry_detected, terminal, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trading_date, stream) DO UPDATE SET
			state=excluded.state,
			range_locked=excluded.range_locked,
			range_high=excluded.range_high,
			range_low=excluded.range_low,
			freeze_close=excluded.freeze_close,
			long_level=excluded.long_level,
			short_level=excluded.short_level,
			brackets_submitted=excluded.brackets_submitted,
			entry_detected=excluded.entry_detected,
			terminal=excluded.terminal,
			updated_at=excluded.updated_at`,
		r.TradingDate, r.Stream, r.State, r.RangeLocked, r.RangeHigh, r.RangeLow,
		r.FreezeClose, r.LongLevel, r.ShortLevel, r.Brackets, r.Entry, r.Terminal,
		r.UpdatedAt,
	)
	return err
}

func (j *SQLite) GetStream(date, stream string) (StreamRecord, bool, error) {
	var r StreamRecord
	err := j.db.QueryRow(`
		SELECT trading_date, stream, state, range_locked, range_high, range_low,
		       freeze_close, long_level, short_level, brackets_submitted,
		       entry_detected, terminal, updated_at
		FROM stream_journal WHERE trading_date = ? AND stream = ?`,
		date, stream,
	).Scan(&r.TradingDate, &r.Stream, &r.State, &r.RangeLocked, &r.RangeHigh,
		&r.RangeLow, &r.FreezeClose, &r.LongLevel, &r.ShortLevel, &r.Brackets,
		&r.Entry, &r.Terminal, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return StreamRecord{}, false, nil
	}
	if err != nil {
		return StreamRecord{}, false, err
	}
	return r, true, nil
}

func (j *SQLite) ListStreams(date string) ([]StreamRecord, error) {
	rows, err := j.db.Query(`
		SELECT trading_date, stream, state, range_locked, range_high, range_low,
		       freeze_close, long_level, short_level, brackets_submitted,
		       entry_detected, terminal, updated_at
		FROM stream_journal WHERE trading_date = ? ORDER BY stream`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StreamRecord
	for rows.Next() {
		var r StreamRecord
		if err := rows.Scan(&r.TradingDate, &r.Stream, &r.State, &r.RangeLocked,
			&r.RangeHigh, &r.RangeLow, &r.FreezeClose, &r.LongLevel, &r.ShortLevel,
			&r.Brackets, &r.Entry, &r.Terminal, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertIntent is the journal-write-then-submit check-and-set. The INSERT
// only succeeds for a hash never seen on this date/stream; a second caller
// gets inserted=false and must not submit.
func (j *SQLite) InsertIntent(r IntentRecord) (bool, error) {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	res, err := j.db.Exec(`
		INSERT OR IGNORE INTO execution_journal
		(trading_date, stream, intent_hash, state, filled_qty, completed, order_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TradingDate, r.Stream, r.IntentHash, r.State, r.FilledQty, r.Completed,
		r.OrderID, r.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (j *SQLite) UpdateIntent(r IntentRecord) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	res, err := j.db.Exec(`
		UPDATE execution_journal
		SET state = ?, filled_qty = ?, completed = ?, order_id = ?, updated_at = ?
		WHERE trading_date = ? AND stream = ? AND intent_hash = ?`,
		r.State, r.FilledQty, r.Completed, r.OrderID, r.UpdatedAt,
		r.TradingDate, r.Stream, r.IntentHash,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update intent %s/%s/%s: no such entry",
			r.TradingDate, r.Stream, r.IntentHash)
	}
	return nil
}

func (j *SQLite) GetIntent(date, stream, hash string) (IntentRecord, bool, error) {
	var r IntentRecord
	err := j.db.QueryRow(`
		SELECT trading_date, stream, intent_hash, state, filled_qty, completed, order_id, updated_at
		FROM execution_journal
		WHERE trading_date = ? AND stream = ? AND intent_hash = ?`,
		date, stream, hash,
	).Scan(&r.TradingDate, &r.Stream, &r.IntentHash, &r.State, &r.FilledQty,
		&r.Completed, &r.OrderID, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return IntentRecord{}, false, nil
	}
	if err != nil {
		return IntentRecord{}, false, err
	}
	return r, true, nil
}

func (j *SQLite) ListIntents(date, stream string) ([]IntentRecord, error) {
	rows, err := j.db.Query(`
		SELECT trading_date, stream, intent_hash, state, filled_qty, completed, order_id, updated_at
		FROM execution_journal
		WHERE trading_date = ? AND stream = ? ORDER BY updated_at, intent_hash`,
		date, stream)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IntentRecord
	for rows.Next() {
		var r IntentRecord
		if err := rows.Scan(&r.TradingDate, &r.Stream, &r.IntentHash, &r.State,
			&r.FilledQty, &r.Completed, &r.OrderID, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLite) AppendEvent(e events.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = j.db.Exec(`
		INSERT INTO events (id, trading_date, stream, type, payload, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.TradingDate, e.Stream, string(e.Type), string(payload), e.At,
	)
	return err
}

// EventsFor returns the canonical event log for one day/stream in ULID
// (insertion) order. Restart recovery replays this.
func (j *SQLite) EventsFor(date, stream string) ([]events.Event, error) {
	rows, err := j.db.Query(`
		SELECT id, trading_date, stream, type, payload, at
		FROM events WHERE trading_date = ? AND stream = ? ORDER BY id`,
		date, stream)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var typ, payload string
		if err := rows.Scan(&e.ID, &e.TradingDate, &e.Stream, &typ, &payload, &e.At); err != nil {
			return nil, err
		}
		e.Type = events.Type(typ)
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("corrupt event payload %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
