package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

// EstablishmentRepository reads payee and deposit configuration. Rows are owned
// by the establishment admin screens; InitDB only makes sure the table exists.
type EstablishmentRepository struct {
	db *sql.DB
}

func NewEstablishmentRepository(db *sql.DB) *EstablishmentRepository {
	return &EstablishmentRepository{db: db}
}

func (r *EstablishmentRepository) InitDB() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS establishments (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		payee_identifier VARCHAR(255),
		deposit_percent NUMERIC(5,2)
	)`)
	return err
}

func (r *EstablishmentRepository) GetEstablishment(ctx context.Context, id string) (*models.Establishment, error) {
	var e models.Establishment
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(payee_identifier, ''), COALESCE(deposit_percent, 0)
		FROM establishments WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.PayeeIdentifier, &e.DepositPercent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
