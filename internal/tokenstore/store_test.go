package tokenstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoauth/pkg/logging"
	"echoauth/pkg/oauth"
)

var testKey = Key{
	TokenURI: "https://oauth.example.edu/as/token.oauth2",
	ClientID: "7da405f38cbc4be4",
}

func testTokens(access string) *oauth.TokenSet {
	return &oauth.TokenSet{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: "refresh-" + access,
		ExpiresIn:    7199,
		Scope:        "auth-google read openid",
		ObtainedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{Dir: filepath.Join(t.TempDir(), "tokens")})
	require.NoError(t, err)
	return store
}

func TestNew_CreatesPrivateDirectory(t *testing.T) {
	store := newTestStore(t)

	info, err := os.Stat(store.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	}
}

func TestStore_SaveLoad(t *testing.T) {
	store := newTestStore(t)
	tokens := testTokens("tok1")

	require.NoError(t, store.Save(testKey, tokens))

	record, err := store.Load(testKey)
	require.NoError(t, err)
	assert.Equal(t, testKey, record.Key())
	assert.Equal(t, "tok1", record.Tokens.AccessToken)
	assert.Equal(t, "refresh-tok1", record.Tokens.RefreshToken)
	assert.Equal(t, 7199, record.Tokens.ExpiresIn)
	assert.True(t, record.Tokens.ObtainedAt.Equal(tokens.ObtainedAt))
	assert.False(t, record.SavedAt.IsZero())
}

func TestStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	store := newTestStore(t)
	require.NoError(t, store.Save(testKey, testTokens("tok1")))

	info, err := os.Stat(filepath.Join(store.Dir(), testKey.fileName()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStore_SaveReplaces(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(testKey, testTokens("tok1")))
	require.NoError(t, store.Save(testKey, testTokens("tok2")))

	record, err := store.Load(testKey)
	require.NoError(t, err)
	assert.Equal(t, "tok2", record.Tokens.AccessToken)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestStore_KeysAreIndependent(t *testing.T) {
	store := newTestStore(t)
	other := Key{TokenURI: testKey.TokenURI, ClientID: "another-client"}

	require.NoError(t, store.Save(testKey, testTokens("tok1")))
	require.NoError(t, store.Save(other, testTokens("tok-other")))

	record, err := store.Load(other)
	require.NoError(t, err)
	assert.Equal(t, "tok-other", record.Tokens.AccessToken)

	record, err = store.Load(testKey)
	require.NoError(t, err)
	assert.Equal(t, "tok1", record.Tokens.AccessToken)
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(testKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoadCorrupt(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), testKey.fileName()), []byte("{not json"), 0600))

	_, err := store.Load(testKey)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(testKey, testTokens("tok1")))

	require.NoError(t, store.Delete(testKey))
	_, err := store.Load(testKey)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is fine.
	assert.NoError(t, store.Delete(testKey))
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)
	keyB := Key{TokenURI: "https://b.example.com/token", ClientID: "b"}
	keyA := Key{TokenURI: "https://a.example.com/token", ClientID: "a"}

	require.NoError(t, store.Save(keyB, testTokens("tok-b")))
	require.NoError(t, store.Save(keyA, testTokens("tok-a")))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "garbage.json"), []byte("[]"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("hello"), 0600))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, keyA, records[0].Key())
	assert.Equal(t, keyB, records[1].Key())
}

func TestStore_SaveNil(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Save(testKey, nil))
}

func TestStore_ConcurrentSaves(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Save(testKey, testTokens("tok")))
		}()
	}
	wg.Wait()

	record, err := store.Load(testKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", record.Tokens.AccessToken)
}

func TestStore_NeverLogsTokens(t *testing.T) {
	var buf bytes.Buffer
	logging.InitForCLI(logging.LevelDebug, &buf)
	t.Cleanup(func() { logging.InitForCLI(logging.LevelInfo, os.Stderr) })

	store := newTestStore(t)
	tokens := testTokens("super-secret-access")
	require.NoError(t, store.Save(testKey, tokens))
	require.NoError(t, store.Delete(testKey))

	output := buf.String()
	assert.Contains(t, output, "[AUDIT] token_store")
	assert.Contains(t, output, "[AUDIT] token_delete")
	assert.NotContains(t, output, tokens.AccessToken)
	assert.NotContains(t, output, tokens.RefreshToken)
}
