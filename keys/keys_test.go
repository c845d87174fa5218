package keys

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgentID(t *testing.T) interfaces.AgentID {
	t.Helper()
	id := interfaces.AgentID(uuid.New().String())
	require.NoError(t, id.Validate())
	return id
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryProviderLifecycle(t *testing.T) {
	provider := NewMemoryProvider()
	agentID := newAgentID(t)

	pub, err := provider.Generate(agentID, interfaces.AlgorithmEd25519)
	require.NoError(t, err)
	require.NotEmpty(t, pub)

	resolved, keyHash, err := provider.Resolve(context.Background(), agentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PublicKey(pub), resolved)
	assert.Equal(t, interfaces.HashPublicKey(pub), keyHash)

	handle, err := provider.SigningKey(context.Background(), agentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.AlgorithmEd25519, handle.Algorithm())

	err = handle.Use(func(key []byte) error {
		assert.NotEmpty(t, key)
		return nil
	})
	require.NoError(t, err)

	handle.Destroy()
	err = handle.Use(func(key []byte) error { return nil })
	assert.ErrorIs(t, err, interfaces.ErrKeyDestroyed)
}

func TestMemoryProviderUnknownAgent(t *testing.T) {
	provider := NewMemoryProvider()
	agentID := newAgentID(t)

	_, _, err := provider.Resolve(context.Background(), agentID)
	assert.ErrorIs(t, err, interfaces.ErrKeyResolution)

	_, err = provider.SigningKey(context.Background(), agentID)
	assert.ErrorIs(t, err, interfaces.ErrKeyResolution)
}

func TestEncryptDecryptPrivateKey(t *testing.T) {
	passphrase := []byte("correct horse battery staple")
	plaintext := []byte("very secret key material")

	sealed, err := EncryptPrivateKey(passphrase, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), string(plaintext))

	opened, err := DecryptPrivateKey(passphrase, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	_, err = DecryptPrivateKey([]byte("wrong passphrase"), sealed)
	assert.Error(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = DecryptPrivateKey(passphrase, sealed)
	assert.Error(t, err)
}

func TestEncryptPrivateKeyRandomizesOutput(t *testing.T) {
	passphrase := []byte("passphrase")
	plaintext := []byte("payload")

	first, err := EncryptPrivateKey(passphrase, plaintext)
	require.NoError(t, err)
	second, err := EncryptPrivateKey(passphrase, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestFileProviderRoundtrip(t *testing.T) {
	provider, err := NewFileProvider(t.TempDir(), []byte("test passphrase"), discardLogger())
	require.NoError(t, err)

	agentID := newAgentID(t)
	pub, err := provider.Generate(agentID, interfaces.AlgorithmRSAPSS)
	require.NoError(t, err)

	resolved, keyHash, err := provider.Resolve(context.Background(), agentID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PublicKey(pub), resolved)
	assert.Equal(t, interfaces.HashPublicKey(pub), keyHash)

	handle, err := provider.SigningKey(context.Background(), agentID)
	require.NoError(t, err)
	defer handle.Destroy()
	assert.Equal(t, interfaces.AlgorithmRSAPSS, handle.Algorithm())
}

func TestFileProviderWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	provider, err := NewFileProvider(dir, []byte("right"), discardLogger())
	require.NoError(t, err)

	agentID := newAgentID(t)
	_, err = provider.Generate(agentID, interfaces.AlgorithmEd25519)
	require.NoError(t, err)

	other, err := NewFileProvider(dir, []byte("wrong"), discardLogger())
	require.NoError(t, err)

	// Public material is not sealed and still resolves.
	_, _, err = other.Resolve(context.Background(), agentID)
	require.NoError(t, err)

	_, err = other.SigningKey(context.Background(), agentID)
	assert.ErrorIs(t, err, interfaces.ErrKeyResolution)
}

func TestFileProviderRequiresPassphrase(t *testing.T) {
	_, err := NewFileProvider(t.TempDir(), nil, discardLogger())
	assert.Error(t, err)
}

func TestShamirSplitRecover(t *testing.T) {
	passphrase := []byte("the vault passphrase")

	shares, err := SplitPassphrase(passphrase, 3, 5)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	recovered, err := RecoverPassphrase(shares[:3])
	require.NoError(t, err)
	assert.Equal(t, passphrase, recovered)

	recovered, err = RecoverPassphrase([][]byte{shares[4], shares[1], shares[2]})
	require.NoError(t, err)
	assert.Equal(t, passphrase, recovered)
}

func TestShamirBadParams(t *testing.T) {
	_, err := SplitPassphrase([]byte("p"), 1, 5)
	assert.Error(t, err)

	_, err = SplitPassphrase([]byte("p"), 6, 5)
	assert.Error(t, err)

	_, err = SplitPassphrase(nil, 2, 3)
	assert.Error(t, err)
}

func TestKeyRecordRoundtrip(t *testing.T) {
	provider := NewMemoryProvider()
	agentID := newAgentID(t)
	pub, err := provider.Generate(agentID, interfaces.AlgorithmEd25519)
	require.NoError(t, err)

	record := FormatKeyRecord(interfaces.AlgorithmEd25519, pub)
	parsed, algorithm, err := ParseKeyRecord(record)
	require.NoError(t, err)
	assert.Equal(t, interfaces.AlgorithmEd25519, algorithm)
	assert.Equal(t, interfaces.PublicKey(pub), parsed)
}

func TestParseKeyRecordRejectsMalformed(t *testing.T) {
	cases := []struct {
		name   string
		record string
	}{
		{"wrong version", "v=JACS2; a=ring-Ed25519; p=AAAA"},
		{"missing version", "a=ring-Ed25519; p=AAAA"},
		{"unknown algorithm", "v=JACS1; a=rot13; p=AAAA"},
		{"bad encoding", "v=JACS1; a=ring-Ed25519; p=!!!"},
		{"empty key", "v=JACS1; a=ring-Ed25519; p="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseKeyRecord(tc.record)
			assert.Error(t, err)
		})
	}
}
