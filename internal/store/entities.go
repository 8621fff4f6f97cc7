// internal/store/entities.go
package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/models"
)

// EntityStore reads the business entities referenced by event payloads. All
// getters return (nil, nil) for a missing row so enrichment can tolerate
// dangling references.
type EntityStore struct {
	db *sql.DB
}

func NewEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, COALESCE(email, ''), role, COALESCE(locale, '')
		FROM users WHERE id = $1`, id)

	u := &models.User{}
	var orgID sql.NullString
	err := row.Scan(&u.ID, &orgID, &u.Name, &u.Email, &u.Role, &u.Locale)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreFailedError("get user", err)
	}
	u.OrganizationID = orgID.String
	return u, nil
}

func (s *EntityStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, COALESCE(phone, ''), COALESCE(email, '')
		FROM clients WHERE id = $1`, id)

	c := &models.Client{}
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.Email)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreFailedError("get client", err)
	}
	return c, nil
}

func (s *EntityStore) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(make, ''), COALESCE(model, ''), COALESCE(year, 0), COALESCE(license_plate, '')
		FROM vehicles WHERE id = $1`, id)

	v := &models.Vehicle{}
	err := row.Scan(&v.ID, &v.Make, &v.Model, &v.Year, &v.LicensePlate)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreFailedError("get vehicle", err)
	}
	return v, nil
}

func (s *EntityStore) GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, status, COALESCE(client_id, ''), COALESCE(vehicle_id, ''), scheduled_at
		FROM work_orders WHERE id = $1`, id)

	w := &models.WorkOrder{}
	var scheduledAt sql.NullTime
	err := row.Scan(&w.ID, &w.Number, &w.Status, &w.ClientID, &w.VehicleID, &scheduledAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreFailedError("get work order", err)
	}
	if scheduledAt.Valid {
		w.ScheduledAt = &scheduledAt.Time
	}
	return w, nil
}

func (s *EntityStore) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, total, COALESCE(currency, ''), due_date
		FROM invoices WHERE id = $1`, id)

	inv := &models.Invoice{}
	var dueDate sql.NullTime
	err := row.Scan(&inv.ID, &inv.Number, &inv.Total, &inv.Currency, &dueDate)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreFailedError("get invoice", err)
	}
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	return inv, nil
}

func (s *EntityStore) GetBranch(ctx context.Context, id string) (*models.Branch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name FROM branches WHERE id = $1`, id)

	b := &models.Branch{}
	err := row.Scan(&b.ID, &b.Name)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreFailedError("get branch", err)
	}
	return b, nil
}
