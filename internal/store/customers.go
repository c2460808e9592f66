package store

import (
	"context"
	"fmt"

	"apparel-service/internal/models"
)

const customerColumns = `id, email, name, phone, addresses, created_at`

// maxCustomerAttempts bounds the insert/re-select loop when two first
// orders for the same email race
const maxCustomerAttempts = 3

// FindCustomerByEmail retrieves a customer by email inside the transaction
func (t *Tx) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	found, err := getOne(ctx, t.tx, &customer,
		"SELECT "+customerColumns+" FROM customers WHERE email = $1", email)
	if err != nil || !found {
		return nil, err
	}
	return &customer, nil
}

// InsertCustomer inserts customer unless the email is already taken, in
// which case it reports false and leaves the transaction usable.
func (t *Tx) InsertCustomer(ctx context.Context, customer *models.Customer) (bool, error) {
	query := `
		INSERT INTO customers (email, name, phone, addresses)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at`

	return getOne(ctx, t.tx, customer, query,
		customer.Email, customer.Name, customer.Phone, customer.Addresses)
}

// EnsureCustomer returns the customer with the given email, creating it
// with the supplied details when absent.
func (t *Tx) EnsureCustomer(ctx context.Context, customer models.Customer) (*models.Customer, error) {
	for attempt := 0; attempt < maxCustomerAttempts; attempt++ {
		existing, err := t.FindCustomerByEmail(ctx, customer.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to look up customer: %w", err)
		}
		if existing != nil {
			return existing, nil
		}

		created := customer
		inserted, err := t.InsertCustomer(ctx, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		if inserted {
			return &created, nil
		}
	}
	return nil, fmt.Errorf("customer could not be resolved after %d attempts", maxCustomerAttempts)
}
