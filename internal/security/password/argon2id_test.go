package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/clave/internal/security/password"
)

// Parámetros chicos para que los tests no quemen CPU.
func fastHasher() password.Hasher {
	return password.Hasher{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32, SaltLen: 16}
}

func TestHashAndVerify(t *testing.T) {
	h := fastHasher()

	phc, err := h.Hash("hunter2hunter2")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(phc, "$argon2id$v=19$"))

	require.True(t, h.Verify("hunter2hunter2", phc))
	require.False(t, h.Verify("wrong", phc))
}

func TestHash_EmptyPassword(t *testing.T) {
	_, err := fastHasher().Hash("")
	require.Error(t, err)
}

func TestHash_SaltedPerCall(t *testing.T) {
	h := fastHasher()
	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "salt fresco por hash")
}

func TestVerify_MalformedPHC(t *testing.T) {
	h := fastHasher()
	for _, phc := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=8192,t=1,p=1$notb64!!$also-not-b64",
		"$bcrypt$whatever",
	} {
		require.False(t, h.Verify("x", phc), "phc %q", phc)
	}
}

func TestVerify_ParamsComeFromPHC(t *testing.T) {
	// Un hash generado con otros parámetros se verifica igual: los
	// parámetros viajan en el PHC string.
	slow := password.Hasher{Memory: 16 * 1024, Time: 2, Parallelism: 1, KeyLen: 32, SaltLen: 16}
	phc, err := slow.Hash("hunter2hunter2")
	require.NoError(t, err)

	require.True(t, fastHasher().Verify("hunter2hunter2", phc))
}
