package pgstore

// Schema is applied on Open. Seats are embedded as a JSONB array so a trip
// stays a single row and one conditional UPDATE covers the whole seat map.
const Schema = `
CREATE TABLE IF NOT EXISTS trips (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	destination     TEXT NOT NULL,
	date            TIMESTAMPTZ NOT NULL,
	time            TEXT NOT NULL,
	price           DOUBLE PRECISION NOT NULL,
	total_seats     INTEGER NOT NULL CHECK (total_seats >= 1),
	seats           JSONB NOT NULL DEFAULT '[]'::jsonb,
	available_seats INTEGER NOT NULL,
	version         BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_trips_date_time ON trips (date, time);

CREATE TABLE IF NOT EXISTS bookings (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	user_name      TEXT NOT NULL DEFAULT '',
	user_email     TEXT NOT NULL DEFAULT '',
	trip           JSONB NOT NULL,
	seats          JSONB NOT NULL,
	total_amount   DOUBLE PRECISION NOT NULL,
	payment_method TEXT NOT NULL,
	status         TEXT NOT NULL,
	booking_date   TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id, booking_date DESC);
`
