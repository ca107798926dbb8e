package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luchan-pos/avocado-bonus/internal/model/operator"
	"github.com/luchan-pos/avocado-bonus/internal/serviceerrs"
)

func TestOperatorRepository_Create(t *testing.T) {
	repo, ctx, cancel, _ := setupRepo(t, NewOperatorRepository)
	defer cancel()

	op := operator.Operator{
		LoginHash:    "operator1hash",
		PasswordHash: "operator1password-hash",
	}
	require.NoError(t, repo.Create(ctx, &op))
	assert.NotEmpty(t, op.ID)

	assert.True(t, repo.Exists(ctx, "operator1hash"))
	assert.False(t, repo.Exists(ctx, "no-such-hash"))
}

func TestOperatorRepository_Create_conflict(t *testing.T) {
	repo, ctx, cancel, _ := setupRepo(t, NewOperatorRepository)
	defer cancel()

	op := operator.Operator{
		LoginHash:    "taken-login-hash",
		PasswordHash: "password-hash",
	}
	require.NoError(t, repo.Create(ctx, &op))

	again := operator.Operator{
		LoginHash:    "taken-login-hash",
		PasswordHash: "other-password-hash",
	}
	err := repo.Create(ctx, &again)
	assert.ErrorIs(t, err, serviceerrs.ErrConflict)
}

func TestOperatorRepository_Find(t *testing.T) {
	repo, ctx, cancel, _ := setupRepo(t, NewOperatorRepository)
	defer cancel()

	op := operator.Operator{
		LoginHash:    "findable-login-hash",
		PasswordHash: "findable-password-hash",
	}
	require.NoError(t, repo.Create(ctx, &op))

	byLogin, err := repo.FindByLogin(ctx, "findable-login-hash")
	require.NoError(t, err)
	assert.Equal(t, op.ID, byLogin.ID)
	assert.Equal(t, "findable-password-hash", byLogin.PasswordHash)

	byID, err := repo.FindByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, "findable-login-hash", byID.LoginHash)

	_, err = repo.FindByLogin(ctx, "missing-login-hash")
	assert.ErrorIs(t, err, serviceerrs.ErrNotFound)
}
