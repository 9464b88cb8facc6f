package repositories

import (
	"testing"

	"chat-relay/errors"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateUser_And_Lookups(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(testDB(t))

	id, err := repo.CreateUser("alice", "hashed-secret")
	req.NoError(err)
	req.NotEmpty(id)

	byName, err := repo.GetUserByUsername("alice")
	req.NoError(err)
	req.Equal(id, byName.ID)
	req.Equal("hashed-secret", byName.PasswordHash)

	byID, err := repo.GetUserByID(id)
	req.NoError(err)
	req.Equal("alice", byID.Username)
}

func TestUserRepository_Username_Is_Unique(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(testDB(t))

	_, err := repo.CreateUser("alice", "first")
	req.NoError(err)

	_, err = repo.CreateUser("alice", "second")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestUserRepository_Unknown_User(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(testDB(t))

	_, err := repo.GetUserByUsername("nobody")
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = repo.GetUserByID("also-nobody")
	req.ErrorIs(err, errors.ErrUserNotFound)
}
