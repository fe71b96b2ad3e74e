// Package tokenstore persists TokenSets on disk so that a later process can
// resume a session without another browser round trip.
//
// SECURITY: files hold live credentials. The storage directory is created
// with 0700 permissions and files are written with 0600. Token values are
// never logged; audit events name only the token endpoint and client.
package tokenstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"echoauth/pkg/logging"
	"echoauth/pkg/oauth"
)

// DefaultDir is the storage directory relative to the user's home directory.
const DefaultDir = ".config/echoauth/tokens"

// ErrNotFound is returned by Load when nothing is stored for a key.
var ErrNotFound = errors.New("no stored tokens")

// Key identifies one credential session: a client registered at a token endpoint.
type Key struct {
	TokenURI string
	ClientID string
}

// fileName derives a filesystem-safe name from the key.
func (k Key) fileName() string {
	hash := sha256.Sum256([]byte(k.TokenURI + "\x00" + k.ClientID))
	return hex.EncodeToString(hash[:16]) + ".json"
}

// Record is the persisted form of a session's tokens.
type Record struct {
	TokenURI string          `json:"token_uri"`
	ClientID string          `json:"client_id"`
	Tokens   *oauth.TokenSet `json:"tokens"`
	SavedAt  time.Time       `json:"saved_at"`
}

// Key returns the key the record was stored under.
func (r *Record) Key() Key {
	return Key{TokenURI: r.TokenURI, ClientID: r.ClientID}
}

// Config configures a Store.
type Config struct {
	// Dir is the storage directory. Defaults to ~/.config/echoauth/tokens.
	Dir string
}

// Store keeps one JSON file per Key.
type Store struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// New creates a Store, creating its directory if needed.
func New(cfg Config) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}

	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save replaces the stored tokens for key. The file is written atomically,
// so a concurrent Load sees either the old or the new TokenSet.
func (s *Store) Save(key Key, tokens *oauth.TokenSet) error {
	if tokens == nil {
		return fmt.Errorf("cannot store nil tokens")
	}

	record := &Record{
		TokenURI: key.TokenURI,
		ClientID: key.ClientID,
		Tokens:   tokens,
		SavedAt:  s.now(),
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(key.fileName(), data); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "token_store",
			Outcome: "failure",
			Target:  key.TokenURI,
			Details: err.Error(),
		})
		return fmt.Errorf("failed to persist tokens: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "token_store",
		Outcome: "success",
		Target:  key.TokenURI,
		Details: fmt.Sprintf("client_id=%s has_refresh_token=%t", key.ClientID, tokens.HasRefreshToken()),
	})
	return nil
}

func (s *Store) writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tokens-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}

// Load returns the stored record for key, or ErrNotFound.
func (s *Store) Load(key Key) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readFile(key.fileName())
	if err != nil {
		return nil, err
	}
	if record.TokenURI != key.TokenURI || record.ClientID != key.ClientID {
		return nil, ErrNotFound
	}
	return record, nil
}

func (s *Store) readFile(name string) (*Record, error) {
	// #nosec G304 -- name is derived from a hash, not user input
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token file %s: %w", name, err)
	}
	if record.Tokens == nil || record.Tokens.AccessToken == "" {
		return nil, fmt.Errorf("token file %s holds no access token", name)
	}
	return &record, nil
}

// Delete removes the stored tokens for key. Deleting a missing key is not an error.
func (s *Store) Delete(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, key.fileName()))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Audit(logging.AuditEvent{
			Action:  "token_delete",
			Outcome: "failure",
			Target:  key.TokenURI,
			Details: err.Error(),
		})
		return fmt.Errorf("failed to delete token file: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "token_delete",
		Outcome: "success",
		Target:  key.TokenURI,
	})
	return nil
}

// List returns every readable record, ordered by token endpoint and client.
// Unreadable files are skipped.
func (s *Store) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read token storage directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		record, err := s.readFile(entry.Name())
		if err != nil {
			logging.Debug("TokenStore", "Skipping token file %s: %v", entry.Name(), err)
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].TokenURI != records[j].TokenURI {
			return records[i].TokenURI < records[j].TokenURI
		}
		return records[i].ClientID < records[j].ClientID
	})
	return records, nil
}
