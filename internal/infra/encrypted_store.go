package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/stridegate/stridegate/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ sqlcipher.SQLiteDriver

const storeDBName = "slots.db"

// EncryptedSlotStore implements domain.SlotStore over a SQLCipher encrypted
// SQLite database. Same contract as FileSlotStore; pick it via configuration
// when the settings file should not be user-readable.
type EncryptedSlotStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedSlotStore opens (or creates) the encrypted slot database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedSlotStore(dataDir string, key []byte) (*EncryptedSlotStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedSlotStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *EncryptedSlotStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS slots (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Read unmarshals the named slot into v.
func (s *EncryptedSlotStore) Read(name string, v any) error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM slots WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return domain.ErrSlotNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), v)
}

// Write marshals v into the named slot. INSERT OR REPLACE is a single
// statement, so readers never observe a partial record.
func (s *EncryptedSlotStore) Write(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO slots (name, value, updated_at) VALUES (?, ?, ?)`,
		name, string(data), time.Now().Unix())
	return err
}

// Delete removes the named slot.
func (s *EncryptedSlotStore) Delete(name string) error {
	_, err := s.db.Exec(`DELETE FROM slots WHERE name = ?`, name)
	return err
}

// Close releases the database connection.
func (s *EncryptedSlotStore) Close() error {
	return s.db.Close()
}

// Ensure EncryptedSlotStore implements domain.SlotStore.
var _ domain.SlotStore = (*EncryptedSlotStore)(nil)
