package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/model"
)

type OperatorStore struct {
	db *sql.DB
}

func NewOperatorStore(db *sql.DB) *OperatorStore {
	return &OperatorStore{db: db}
}

const operatorCols = `id, email, password_hash, role, created_at`

func scanOperator(scanner interface{ Scan(...any) error }) (*model.Operator, error) {
	var op model.Operator
	var createdAt string
	if err := scanner.Scan(&op.ID, &op.Email, &op.PasswordHash, &op.Role, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if op.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &op, nil
}

// Create adds an operator. The email is stored lower-cased.
func (s *OperatorStore) Create(ctx context.Context, email, passwordHash, role string) (*model.Operator, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (email, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		email, passwordHash, role, formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("create operator: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *OperatorStore) GetByID(ctx context.Context, id int64) (*model.Operator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operatorCols+` FROM operators WHERE id = ?`, id)
	op, err := scanOperator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return op, nil
}

func (s *OperatorStore) GetByEmail(ctx context.Context, email string) (*model.Operator, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+operatorCols+` FROM operators WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	op, err := scanOperator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operator by email: %w", err)
	}
	return op, nil
}

func (s *OperatorStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operators SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update operator password: %w", err)
	}
	return nil
}
