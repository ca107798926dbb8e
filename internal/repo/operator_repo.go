package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/luchan-pos/avocado-bonus/internal/model"
	"github.com/luchan-pos/avocado-bonus/internal/model/operator"
	"github.com/luchan-pos/avocado-bonus/internal/serviceerrs"
)

type OperatorRepository struct {
	DB
}

func NewOperatorRepository(pool connectionPool, log *slog.Logger) *OperatorRepository {
	return &OperatorRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *OperatorRepository) Create(ctx context.Context, op *operator.Operator) error {
	createLogic := func() (string, error) {
		var id string
		err := r.pool.QueryRow(ctx,
			`INSERT INTO operators (hash_login, hash_password)
             VALUES ($1, $2)
             RETURNING id_operator`,
			op.LoginHash, op.PasswordHash).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("failed to insert operator: %w", err)
		}
		return id, nil
	}

	id, err := WithRetry[string](createLogic, 0)
	if isUniqueViolation(err, "") {
		return serviceerrs.ErrConflict
	}
	if err != nil {
		return err //nolint: wrapcheck // error from wrapped function
	}

	op.ID = id
	return nil
}

func (r *OperatorRepository) Exists(ctx context.Context, loginHash string) bool {
	existsLogic := func() (bool, error) {
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM operators WHERE hash_login = $1)`,
			loginHash).Scan(&exists)
		if err != nil {
			r.log.LogAttrs(ctx,
				slog.LevelError,
				"failed to check if loginHash exists in DB",
				slog.Any(model.KeyLoggerError, err),
			)
			return false, nil
		}
		return exists, nil
	}

	exists, _ := WithRetry[bool](existsLogic, 0)
	return exists
}

func (r *OperatorRepository) FindByLogin(ctx context.Context, loginHash string,
) (operator.Operator, error) {
	return r.find(ctx,
		`SELECT id_operator, hash_login, hash_password
         FROM operators
         WHERE hash_login = $1`,
		loginHash)
}

func (r *OperatorRepository) FindByID(ctx context.Context, id string,
) (operator.Operator, error) {
	return r.find(ctx,
		`SELECT id_operator, hash_login, hash_password
         FROM operators
         WHERE id_operator = $1`,
		id)
}

func (r *OperatorRepository) find(ctx context.Context, query, key string,
) (operator.Operator, error) {
	findLogic := func() (operator.Operator, error) {
		var op operator.Operator
		err := r.pool.QueryRow(ctx, query, key).
			Scan(&op.ID, &op.LoginHash, &op.PasswordHash)
		if err != nil {
			return operator.Operator{}, err //nolint: wrapcheck // checked below
		}
		return op, nil
	}

	op, err := WithRetry[operator.Operator](findLogic, 0)
	if errors.Is(err, pgx.ErrNoRows) {
		return operator.Operator{}, serviceerrs.ErrNotFound
	}
	if err != nil {
		return operator.Operator{}, err //nolint: wrapcheck // error from wrapped function
	}
	return op, nil
}
