package journal

const Schema = `
CREATE TABLE IF NOT EXISTS stream_journal (
	trading_date TEXT NOT NULL,
	stream TEXT NOT NULL,
	state TEXT NOT NULL,
	range_locked INTEGER NOT NULL DEFAULT 0,
	range_high REAL NOT NULL DEFAULT 0,
	range_low REAL NOT NULL DEFAULT 0,
	freeze_close REAL NOT NULL DEFAULT 0,
	long_level REAL NOT NULL DEFAULT 0,
	short_level REAL NOT NULL DEFAULT 0,
	brackets_submitted INTEGER NOT NULL DEFAULT 0,
	entry_detected INTEGER NOT NULL DEFAULT 0,
	terminal TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (trading_date, stream)
);

CREATE TABLE IF NOT EXISTS execution_journal (
	trading_date TEXT NOT NULL,
	stream TEXT NOT NULL,
	intent_hash TEXT NOT NULL,
	state TEXT NOT NULL,
	filled_qty REAL NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	order_id TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (trading_date, stream, intent_hash)
);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	trading_date TEXT NOT NULL,
	stream TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_day_stream ON events(trading_date, stream, id);
`
