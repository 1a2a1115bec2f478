package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/clave/internal/domain/repository"
	"github.com/dropDatabas3/clave/internal/store/memory"
)

func upsertInput() repository.UpsertSocialLinkInput {
	return repository.UpsertSocialLinkInput{
		Provider: "google",
		SocialID: "sub-123",
		Email:    "a@b.com",
		Name:     "Ada",
	}
}

func TestUserRepo_CreateAndLookup(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	u, err := store.Users().Create(ctx, repository.CreateUserInput{
		Email: "A@B.com", Name: "Ada", PasswordHash: "$argon2id$fake",
	})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.Equal(t, "a@b.com", u.Email)
	require.NotNil(t, u.PasswordHash)
	require.True(t, u.Active())

	got, err := store.Users().GetByEmail(ctx, "a@B.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	got, err = store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)

	_, err = store.Users().GetByID(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepo_CreateConflict(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := store.Users().Create(ctx, repository.CreateUserInput{Email: "a@b.com"})
	require.NoError(t, err)

	_, err = store.Users().Create(ctx, repository.CreateUserInput{Email: "A@B.com"})
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestUserRepo_GetOrCreate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first, err := store.Users().GetOrCreate(ctx, repository.CreateUserInput{Email: "a@b.com"})
	require.NoError(t, err)

	second, err := store.Users().GetOrCreate(ctx, repository.CreateUserInput{Email: "a@b.com", Name: "ignored"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestUserRepo_SoftDelete(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	u, err := store.Users().Create(ctx, repository.CreateUserInput{Email: "a@b.com"})
	require.NoError(t, err)

	require.NoError(t, store.Users().SoftDelete(ctx, u.ID))

	// Sigue siendo visible por email, pero inactivo.
	got, err := store.Users().GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.False(t, got.Active())

	require.ErrorIs(t, store.Users().SoftDelete(ctx, u.ID), repository.ErrNotFound)
	require.ErrorIs(t, store.Users().SoftDelete(ctx, "missing"), repository.ErrNotFound)
}

func TestSocialRepo_UpsertCreatesUser(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	link, isNew, err := store.Social().Upsert(ctx, upsertInput())
	require.NoError(t, err)
	require.True(t, isNew)
	require.True(t, link.IsActive)

	user, err := store.Users().GetByID(ctx, link.UserID)
	require.NoError(t, err)
	require.Equal(t, "a@b.com", user.Email)
}

func TestSocialRepo_UpsertIdempotent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first, isNew, err := store.Social().Upsert(ctx, upsertInput())
	require.NoError(t, err)
	require.True(t, isNew)

	second, isNew, err := store.Social().Upsert(ctx, upsertInput())
	require.NoError(t, err)
	require.False(t, isNew, "el link activo existente se devuelve tal cual")
	require.Equal(t, first.ID, second.ID)
}

func TestSocialRepo_UpsertReactivates(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	link, _, err := store.Social().Upsert(ctx, upsertInput())
	require.NoError(t, err)
	require.NoError(t, store.Social().Deactivate(ctx, link.ID))

	in := upsertInput()
	in.Name = "Ada Lovelace"
	relinked, isNew, err := store.Social().Upsert(ctx, in)
	require.NoError(t, err)
	require.True(t, isNew)
	require.Equal(t, link.ID, relinked.ID, "reactiva el registro existente")
	require.True(t, relinked.IsActive)
	require.Equal(t, "Ada Lovelace", relinked.Name)
}

func TestSocialRepo_ConcurrentUpsertsSingleLink(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			link, _, err := store.Social().Upsert(ctx, upsertInput())
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = link.ID
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, id := range ids {
		require.Equal(t, ids[0], id, "todas las carreras ven el mismo link")
	}
}

func TestSocialRepo_Deactivate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	link, _, err := store.Social().Upsert(ctx, upsertInput())
	require.NoError(t, err)

	require.NoError(t, store.Social().Deactivate(ctx, link.ID))

	_, err = store.Social().GetActive(ctx, "google", "sub-123")
	require.ErrorIs(t, err, repository.ErrNotFound)

	// Doble deactivate y link inexistente.
	require.ErrorIs(t, store.Social().Deactivate(ctx, link.ID), repository.ErrNotFound)
	require.ErrorIs(t, store.Social().Deactivate(ctx, "missing"), repository.ErrNotFound)
}

func TestSocialRepo_GetActiveByUser(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	link, _, err := store.Social().Upsert(ctx, upsertInput())
	require.NoError(t, err)

	got, err := store.Social().GetActiveByUser(ctx, link.UserID, "google")
	require.NoError(t, err)
	require.Equal(t, link.ID, got.ID)

	_, err = store.Social().GetActiveByUser(ctx, link.UserID, "kakao")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
