package books

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists the books in SQLite.
type Store struct {
	db      *sql.DB
	ownedDB bool
}

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_name ON contacts (name);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id         TEXT PRIMARY KEY,
	date       TIMESTAMP NOT NULL,
	memo       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_lines (
	id           TEXT PRIMARY KEY,
	tx_id        TEXT NOT NULL REFERENCES ledger_transactions (id) ON DELETE CASCADE,
	account      TEXT NOT NULL,
	amount_cents INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_lines_account ON ledger_lines (account);

CREATE TABLE IF NOT EXISTS invoices (
	id         TEXT PRIMARY KEY,
	number     TEXT NOT NULL UNIQUE,
	contact_id TEXT NOT NULL REFERENCES contacts (id),
	status     TEXT NOT NULL,
	currency   TEXT NOT NULL,
	issued_at  TIMESTAMP NOT NULL,
	due_at     TIMESTAMP,
	sent_at    TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS invoice_items (
	id               TEXT PRIMARY KEY,
	invoice_id       TEXT NOT NULL REFERENCES invoices (id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	description      TEXT NOT NULL,
	quantity         INTEGER NOT NULL,
	unit_price_cents INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoice_items ON invoice_items (invoice_id, position);
`

// NewStore opens (creating if needed) the books database at path and
// applies the schema. Use ":memory:" for an ephemeral store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("books path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open books database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := newStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownedDB = true
	return store, nil
}

// NewStoreWithDB builds a books store on an existing connection, sharing
// the database file with the session store.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	return newStoreWithDB(db)
}

func newStoreWithDB(db *sql.DB) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply books schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database if this store opened it.
func (s *Store) Close() error {
	if s.ownedDB {
		return s.db.Close()
	}
	return nil
}

// CreateContact inserts a contact, assigning ID and CreatedAt.
func (s *Store) CreateContact(ctx context.Context, contact *Contact) error {
	if contact == nil || contact.Name == "" {
		return errors.New("contact name is required")
	}
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, name, email, created_at)
		VALUES (?, ?, ?, ?)`,
		contact.ID, contact.Name, contact.Email, contact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// GetContact loads a contact by ID.
func (s *Store) GetContact(ctx context.Context, id string) (*Contact, error) {
	contact := &Contact{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at FROM contacts WHERE id = ?`, id).
		Scan(&contact.ID, &contact.Name, &contact.Email, &contact.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

// GetContactByName looks a contact up by exact name.
func (s *Store) GetContactByName(ctx context.Context, name string) (*Contact, error) {
	contact := &Contact{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at FROM contacts WHERE name = ?`, name).
		Scan(&contact.ID, &contact.Name, &contact.Email, &contact.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

// GetOrCreateContact resolves a contact by name, creating it when missing.
func (s *Store) GetOrCreateContact(ctx context.Context, name, email string) (*Contact, error) {
	if contact, err := s.GetContactByName(ctx, name); err == nil {
		return contact, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	contact := &Contact{Name: name, Email: email}
	if err := s.CreateContact(ctx, contact); err != nil {
		if existing, getErr := s.GetContactByName(ctx, name); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return contact, nil
}

// RecordTransaction appends a balanced double-entry transaction.
func (s *Store) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if tx == nil || len(tx.Lines) < 2 {
		return errors.New("a transaction needs at least two lines")
	}
	for _, line := range tx.Lines {
		if line.Account == "" {
			return errors.New("every line needs an account")
		}
		if line.AmountCents == 0 {
			return errors.New("zero-amount lines are not allowed")
		}
	}
	if !tx.Balanced() {
		return ErrUnbalanced
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `
		INSERT INTO ledger_transactions (id, date, memo, created_at)
		VALUES (?, ?, ?, ?)`,
		tx.ID, tx.Date, tx.Memo, tx.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	for _, line := range tx.Lines {
		if _, err := dbTx.ExecContext(ctx, `
			INSERT INTO ledger_lines (id, tx_id, account, amount_cents)
			VALUES (?, ?, ?, ?)`,
			uuid.NewString(), tx.ID, line.Account, line.AmountCents,
		); err != nil {
			return fmt.Errorf("failed to record line: %w", err)
		}
	}

	return dbTx.Commit()
}

// QueryLedger aggregates line amounts per account over an optional
// account filter and date window.
func (s *Store) QueryLedger(ctx context.Context, q LedgerQuery) ([]AccountTotal, error) {
	query := `
		SELECT l.account, SUM(l.amount_cents)
		FROM ledger_lines l
		JOIN ledger_transactions t ON t.id = l.tx_id
		WHERE 1=1`
	var args []any

	if q.Account != "" {
		query += " AND l.account = ?"
		args = append(args, q.Account)
	}
	if !q.From.IsZero() {
		query += " AND t.date >= ?"
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		query += " AND t.date < ?"
		args = append(args, q.To)
	}
	query += " GROUP BY l.account ORDER BY l.account"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	totals := []AccountTotal{}
	for rows.Next() {
		var total AccountTotal
		if err := rows.Scan(&total.Account, &total.TotalCents); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		totals = append(totals, total)
	}
	return totals, rows.Err()
}

// CreateInvoice inserts a draft invoice with its items, assigning the ID
// and a sequential invoice number.
func (s *Store) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv == nil || inv.ContactID == "" {
		return errors.New("invoice contact is required")
	}
	if len(inv.Items) == 0 {
		return errors.New("invoice needs at least one item")
	}
	for _, item := range inv.Items {
		if item.Description == "" || item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return fmt.Errorf("invalid invoice item %q", item.Description)
		}
	}

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Status = InvoiceDraft
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = time.Now().UTC()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if inv.Number == "" {
		var count int64
		if err := dbTx.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&count); err != nil {
			return fmt.Errorf("failed to number invoice: %w", err)
		}
		inv.Number = fmt.Sprintf("INV-%04d", count+1)
	}

	var dueAt any
	if !inv.DueAt.IsZero() {
		dueAt = inv.DueAt
	}

	if _, err := dbTx.ExecContext(ctx, `
		INSERT INTO invoices (id, number, contact_id, status, currency, issued_at, due_at, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		inv.ID, inv.Number, inv.ContactID, string(inv.Status), inv.Currency,
		inv.IssuedAt, dueAt, inv.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	for i, item := range inv.Items {
		if _, err := dbTx.ExecContext(ctx, `
			INSERT INTO invoice_items (id, invoice_id, position, description, quantity, unit_price_cents)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), inv.ID, i, item.Description, item.Quantity, item.UnitPriceCents,
		); err != nil {
			return fmt.Errorf("failed to create invoice item: %w", err)
		}
	}

	return dbTx.Commit()
}

// GetInvoiceByNumber loads an invoice with its items.
func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv := &Invoice{}
	var status string
	var dueAt, sentAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, contact_id, status, currency, issued_at, due_at, sent_at, created_at
		FROM invoices WHERE number = ?`, number).
		Scan(&inv.ID, &inv.Number, &inv.ContactID, &status, &inv.Currency,
			&inv.IssuedAt, &dueAt, &sentAt, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	inv.Status = InvoiceStatus(status)
	if dueAt.Valid {
		inv.DueAt = dueAt.Time
	}
	if sentAt.Valid {
		inv.SentAt = sentAt.Time
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT description, quantity, unit_price_cents
		FROM invoice_items WHERE invoice_id = ?
		ORDER BY position`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.Description, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, item)
	}
	return inv, rows.Err()
}

// MarkInvoiceSent transitions a draft invoice to sent. Sending an
// already-sent invoice is rejected.
func (s *Store) MarkInvoiceSent(ctx context.Context, number string, sentAt time.Time) error {
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?, sent_at = ?
		WHERE number = ? AND status = ?`,
		string(InvoiceSent), sentAt, number, string(InvoiceDraft),
	)
	if err != nil {
		return fmt.Errorf("failed to mark invoice sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetInvoiceByNumber(ctx, number); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidStatus
	}
	return nil
}
