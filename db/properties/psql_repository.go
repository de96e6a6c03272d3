package properties

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stays/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return PostgresRepository{db: db}
}

// Store upserts a property. Properties are managed by another service, this is used to mirror them.
func (r PostgresRepository) Store(ctx context.Context, p entity.Property) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO
			properties (
				property_kind, property_id, merchant_id, name, description, pictures,
				price_per_month, discounted_price, cancellation_policy, cancellation_fine
			)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (property_kind, property_id) DO UPDATE SET
			merchant_id = excluded.merchant_id,
			name = excluded.name,
			description = excluded.description,
			pictures = excluded.pictures,
			price_per_month = excluded.price_per_month,
			discounted_price = excluded.discounted_price,
			cancellation_policy = excluded.cancellation_policy,
			cancellation_fine = excluded.cancellation_fine
		`,
		p.Ref.Kind,
		p.Ref.ID,
		p.MerchantID,
		p.Name,
		p.Description,
		pq.StringArray(p.Pictures),
		p.PricePerMonth,
		p.DiscountedPrice,
		p.CancellationPolicy,
		p.CancellationFine,
	)
	if err != nil {
		return fmt.Errorf("could not store property %s: %w", p.Ref, err)
	}

	return nil
}

func (r PostgresRepository) Get(ctx context.Context, ref entity.PropertyRef) (entity.Property, error) {
	var row struct {
		MerchantID         string         `db:"merchant_id"`
		Name               string         `db:"name"`
		Description        string         `db:"description"`
		Pictures           pq.StringArray `db:"pictures"`
		PricePerMonth      float64        `db:"price_per_month"`
		DiscountedPrice    *float64       `db:"discounted_price"`
		CancellationPolicy string         `db:"cancellation_policy"`
		CancellationFine   string         `db:"cancellation_fine"`
	}

	err := r.db.GetContext(ctx, &row, `
		SELECT
			merchant_id, name, description, pictures,
			price_per_month, discounted_price, cancellation_policy, cancellation_fine
		FROM
			properties
		WHERE
			property_kind = $1 AND property_id = $2
		`, ref.Kind, ref.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Property{}, entity.ErrNotFound
	} else if err != nil {
		return entity.Property{}, fmt.Errorf("could not get property %s: %w", ref, err)
	}

	return entity.Property{
		Ref:                ref,
		MerchantID:         row.MerchantID,
		Name:               row.Name,
		Description:        row.Description,
		Pictures:           []string(row.Pictures),
		PricePerMonth:      row.PricePerMonth,
		DiscountedPrice:    row.DiscountedPrice,
		CancellationPolicy: entity.CancellationPolicy(row.CancellationPolicy),
		CancellationFine:   entity.CancellationFine(row.CancellationFine),
	}, nil
}
