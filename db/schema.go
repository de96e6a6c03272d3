package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(255) PRIMARY KEY,
			email VARCHAR(255) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS properties (
			property_kind VARCHAR(32) NOT NULL,
			property_id VARCHAR(255) NOT NULL,
			merchant_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			pictures TEXT[] NOT NULL DEFAULT '{}',
			price_per_month DOUBLE PRECISION NOT NULL,
			discounted_price DOUBLE PRECISION,
			cancellation_policy VARCHAR(64) NOT NULL,
			cancellation_fine VARCHAR(64) NOT NULL,
			PRIMARY KEY (property_kind, property_id)
		);

		CREATE TABLE IF NOT EXISTS bookings (
			booking_id UUID PRIMARY KEY,
			property_kind VARCHAR(32) NOT NULL,
			property_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			merchant_id VARCHAR(255) NOT NULL,
			stay_start_date DATE NOT NULL,
			stay_end_date DATE NOT NULL,
			price_per_month DOUBLE PRECISION NOT NULL,
			total_price DOUBLE PRECISION NOT NULL,
			payment_session_id VARCHAR(255) UNIQUE,
			payment_intent_id VARCHAR(255),
			payment_processing BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(32) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			FOREIGN KEY (property_kind, property_id) REFERENCES properties (property_kind, property_id),
			CHECK (stay_end_date > stay_start_date)
		);

		ALTER TABLE bookings ADD COLUMN IF NOT EXISTS payment_processing BOOLEAN NOT NULL DEFAULT FALSE;

		CREATE INDEX IF NOT EXISTS bookings_property_range_idx
			ON bookings (property_kind, property_id, stay_start_date, stay_end_date);
		CREATE INDEX IF NOT EXISTS bookings_user_id_idx ON bookings (user_id);
		CREATE INDEX IF NOT EXISTS bookings_pending_created_at_idx
			ON bookings (created_at) WHERE status = 'PENDING_PAYMENT';

		CREATE TABLE IF NOT EXISTS events (
			event_id UUID PRIMARY KEY,
			published_at TIMESTAMP NOT NULL,
			event_name VARCHAR(255) NOT NULL,
			event_payload JSONB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS read_model_ops_bookings (
			booking_id UUID PRIMARY KEY,
			payload JSONB NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}

	return nil
}
