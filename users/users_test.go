package users_test

import (
	"testing"

	"github.com/jrsteele09/go-punch-clock/users"
	fakeuserrepo "github.com/jrsteele09/go-punch-clock/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	require.Error(t, users.ValidatePasswordStrength(""))
	require.Error(t, users.ValidatePasswordStrength("12345"))
	require.NoError(t, users.ValidatePasswordStrength("123456"))
	// Six runes, more than six bytes
	require.NoError(t, users.ValidatePasswordStrength("ção123"))
}

func TestPasswordHash(t *testing.T) {
	hash, err := users.HashPassword("segredo1")
	require.NoError(t, err)
	require.NotEqual(t, "segredo1", hash)

	u := &users.User{PasswordHash: hash}
	require.True(t, u.CheckPassword("segredo1"))
	require.False(t, u.CheckPassword("segredo2"))
}

func TestMergeMetadata(t *testing.T) {
	u := &users.User{}
	u.MergeMetadata(nil)
	require.Nil(t, u.Metadata)

	u.MergeMetadata(map[string]any{"nome_completo": "Ana Silva"})
	u.MergeMetadata(map[string]any{"cargo": "analista"})
	require.Equal(t, map[string]any{"nome_completo": "Ana Silva", "cargo": "analista"}, u.Metadata)
}

func TestFakeUserRepo_EmailIsCaseInsensitive(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	u := &users.User{Email: "Ana@Empresa.com"}
	require.NoError(t, repo.Upsert(u))
	require.NotEmpty(t, u.ID)

	found, err := repo.GetByEmail("ana@empresa.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, found.ID)

	_, err = repo.GetByEmail("bruno@empresa.com")
	require.ErrorIs(t, err, users.ErrNotFound)
}

func TestFakeUserRepo_ReturnsCopies(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	u := &users.User{Email: "ana@empresa.com", Metadata: map[string]any{"nome_completo": "Ana"}}
	require.NoError(t, repo.Upsert(u))

	found, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	found.Metadata["nome_completo"] = "Outra"

	again, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana", again.Metadata["nome_completo"])
}

func TestFakeUserRepo_EmailChange(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	u := &users.User{Email: "ana@empresa.com"}
	require.NoError(t, repo.Upsert(u))

	u.Email = "ana.silva@empresa.com"
	require.NoError(t, repo.Upsert(u))

	_, err := repo.GetByEmail("ana@empresa.com")
	require.ErrorIs(t, err, users.ErrNotFound)
	found, err := repo.GetByEmail("ana.silva@empresa.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, found.ID)

	list, err := repo.List(0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
