package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/clave/internal/auth"
	"github.com/dropDatabas3/clave/internal/domain/repository"
	"github.com/dropDatabas3/clave/internal/security/password"
	"github.com/dropDatabas3/clave/internal/store/memory"
)

// recordingMailer captura los welcome emails enviados.
type recordingMailer struct {
	sent []string
	fail bool
}

func (m *recordingMailer) SendWelcome(to, name string) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, to)
	return nil
}

func newCredentials(t *testing.T, store *memory.Store, mailer *recordingMailer) auth.CredentialsService {
	t.Helper()
	return auth.NewCredentialsService(auth.CredentialsDeps{
		Users:  store.Users(),
		Hasher: password.NewHasher(),
		Tokens: testIssuer(t),
		Mailer: mailer,
	})
}

func TestSignupAndLogin(t *testing.T) {
	store := memory.New()
	mailer := &recordingMailer{}
	svc := newCredentials(t, store, mailer)
	ctx := context.Background()

	pair, err := svc.Signup(ctx, "Ada@B.com", "hunter2hunter2", "Ada")
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access.Value)
	require.NotEmpty(t, pair.Refresh.Value)
	require.Equal(t, []string{"ada@b.com"}, mailer.sent)

	// Email normalizado a minúsculas en el storage.
	user, err := store.Users().GetByEmail(ctx, "ada@b.com")
	require.NoError(t, err)
	require.Equal(t, "ada@b.com", user.Email)
	require.NotNil(t, user.PasswordHash)

	pair, err = svc.Login(ctx, "ADA@b.com", "hunter2hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access.Value)
}

func TestSignup_Validation(t *testing.T) {
	svc := newCredentials(t, memory.New(), &recordingMailer{})
	ctx := context.Background()

	_, err := svc.Signup(ctx, "", "hunter2hunter2", "")
	require.ErrorIs(t, err, repository.ErrInvalidInput)

	_, err = svc.Signup(ctx, "not-an-email", "hunter2hunter2", "")
	require.ErrorIs(t, err, repository.ErrInvalidInput)

	_, err = svc.Signup(ctx, "a@b.com", "short", "")
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc := newCredentials(t, memory.New(), &recordingMailer{})
	ctx := context.Background()

	_, err := svc.Signup(ctx, "a@b.com", "hunter2hunter2", "Ada")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "a@b.com", "otherpassword", "Ada II")
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestSignup_MailerFailureIsBestEffort(t *testing.T) {
	svc := newCredentials(t, memory.New(), &recordingMailer{fail: true})

	pair, err := svc.Signup(context.Background(), "a@b.com", "hunter2hunter2", "Ada")
	require.NoError(t, err, "el signup no depende del SMTP")
	require.NotEmpty(t, pair.Access.Value)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newCredentials(t, memory.New(), &recordingMailer{})
	ctx := context.Background()

	_, err := svc.Signup(ctx, "a@b.com", "hunter2hunter2", "Ada")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@b.com", "wrong-password")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_UnknownUser(t *testing.T) {
	svc := newCredentials(t, memory.New(), &recordingMailer{})

	_, err := svc.Login(context.Background(), "ghost@b.com", "whatever123")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_SocialOnlyUserHasNoPassword(t *testing.T) {
	store := memory.New()
	svc := newCredentials(t, store, &recordingMailer{})
	ctx := context.Background()

	// Usuario creado por reconciliación social: sin password hash.
	_, err := store.Users().Create(ctx, repository.CreateUserInput{Email: "a@b.com", Name: "Ada"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@b.com", "whatever123")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_DeactivatedUser(t *testing.T) {
	store := memory.New()
	svc := newCredentials(t, store, &recordingMailer{})
	ctx := context.Background()

	_, err := svc.Signup(ctx, "a@b.com", "hunter2hunter2", "Ada")
	require.NoError(t, err)

	user, err := store.Users().GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.NoError(t, store.Users().SoftDelete(ctx, user.ID))

	_, err = svc.Login(ctx, "a@b.com", "hunter2hunter2")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}
