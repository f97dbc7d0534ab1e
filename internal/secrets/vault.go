// Package secrets provides the encrypted credentials vault.
//
// Provider credentials (the OpenAI API key, and anything else an operator
// would rather not leave in an env var or config file) are encrypted at
// rest with AES-256-GCM and stored in a dedicated SQLite database under the
// data directory. Every read is logged to an audit table.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
)

// KeyOpenAIAPIKey is the vault entry the serve and run commands look up
// when no API key is configured directly.
const KeyOpenAIAPIKey = "openai_api_key"

var (
	// ErrNotFound is returned when a credential name does not exist.
	ErrNotFound = errors.New("credential not found")
	// ErrInvalidVaultKey is returned when the vault key is not exactly 32
	// bytes (required for AES-256).
	ErrInvalidVaultKey = errors.New("invalid vault key")
)

var tracer = openworkotel.Tracer("github.com/moshesimon/OpenWork-sub000/internal/secrets")

// Vault manages encrypted credentials.
type Vault struct {
	db  *sql.DB
	gcm cipher.AEAD
}

// Credential is a decrypted vault entry with metadata.
type Credential struct {
	Name        string
	Value       string
	CreatedAt   time.Time
	AccessedAt  time.Time
	AccessCount int
}

// Metadata is the public view of a credential (no plaintext value).
type Metadata struct {
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	AccessCount int       `json:"access_count"`
}

// AccessRecord is a single vault access audit entry.
type AccessRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Caller    string    `json:"caller"`
	Timestamp time.Time `json:"timestamp"`
	Found     bool      `json:"found"`
}

// Open creates or opens a vault at dbPath. The key must be exactly 32 raw
// bytes or 64 hex characters (decoded to 32 bytes for AES-256).
func Open(dbPath, key string) (*Vault, error) {
	keyBytes, err := resolveVaultKey(key)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening credentials database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		encrypted_value TEXT NOT NULL,
		nonce TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		accessed_at TIMESTAMP,
		access_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS credential_access_log (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		caller TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		found BOOLEAN NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cred_access_log_name ON credential_access_log(name);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating vault schema: %w", err)
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Vault{db: db, gcm: gcm}, nil
}

// resolveVaultKey interprets the key as 32 raw bytes or 64 hex characters.
func resolveVaultKey(key string) ([]byte, error) {
	if len(key) == 64 && isHex(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("vault key hex must decode to 32 bytes: %w", ErrInvalidVaultKey)
		}
		return decoded, nil
	}
	if len(key) == 32 {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("vault key must be 32 bytes or 64 hex characters (got %d): %w", len(key), ErrInvalidVaultKey)
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Close releases the database connection.
func (v *Vault) Close() error {
	return v.db.Close()
}

// Set stores an encrypted credential. Upserts on conflict.
func (v *Vault) Set(ctx context.Context, name, value string) error {
	ctx, span := tracer.Start(ctx, "secrets.set",
		trace.WithAttributes(attribute.String("credential.name", name)))
	defer span.End()

	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		span.RecordError(err)
		return fmt.Errorf("generating nonce: %w", err)
	}
	ciphertext := v.gcm.Seal(nil, nonce, []byte(value), nil)

	_, err := v.db.ExecContext(ctx, `
		INSERT INTO credentials (name, encrypted_value, nonce, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			encrypted_value = excluded.encrypted_value,
			nonce = excluded.nonce`,
		name,
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(nonce),
		time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// Get retrieves and decrypts a credential. The access is audit-logged under
// the caller label whether or not the name exists.
func (v *Vault) Get(ctx context.Context, name, caller string) (*Credential, error) {
	ctx, span := tracer.Start(ctx, "secrets.get",
		trace.WithAttributes(
			attribute.String("credential.name", name),
			attribute.String("credential.caller", caller),
		))
	defer span.End()

	var encryptedValue, nonceB64 string
	var createdAt sql.NullTime
	var accessCount int
	err := v.db.QueryRowContext(ctx, `
		SELECT encrypted_value, nonce, created_at, access_count
		FROM credentials WHERE name = ?`, name).
		Scan(&encryptedValue, &nonceB64, &createdAt, &accessCount)
	if errors.Is(err, sql.ErrNoRows) {
		v.logAccess(ctx, name, caller, false)
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying credential: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return nil, fmt.Errorf("decoding nonce: %w", err)
	}
	plaintext, err := v.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decrypting credential: %w", err)
	}

	now := time.Now().UTC()
	_, _ = v.db.ExecContext(ctx, `
		UPDATE credentials SET accessed_at = ?, access_count = access_count + 1 WHERE name = ?`,
		now, name)
	v.logAccess(ctx, name, caller, true)

	return &Credential{
		Name:        name,
		Value:       string(plaintext),
		CreatedAt:   createdAt.Time,
		AccessedAt:  now,
		AccessCount: accessCount + 1,
	}, nil
}

// List returns metadata for all credentials (values are not included).
func (v *Vault) List(ctx context.Context) ([]Metadata, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT name, created_at, accessed_at, access_count FROM credentials ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var createdAt, accessedAt sql.NullTime
		if err := rows.Scan(&m.Name, &createdAt, &accessedAt, &m.AccessCount); err != nil {
			continue
		}
		m.CreatedAt = createdAt.Time
		m.AccessedAt = accessedAt.Time
		out = append(out, m)
	}
	return out, rows.Err()
}

// Rotate re-encrypts an existing credential with a fresh nonce.
func (v *Vault) Rotate(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "secrets.rotate",
		trace.WithAttributes(attribute.String("credential.name", name)))
	defer span.End()

	var encryptedValue, nonceB64 string
	err := v.db.QueryRowContext(ctx, `
		SELECT encrypted_value, nonce FROM credentials WHERE name = ?`, name).
		Scan(&encryptedValue, &nonceB64)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("querying credential: %w", err)
	}

	ciphertext, _ := base64.StdEncoding.DecodeString(encryptedValue)
	nonce, _ := base64.StdEncoding.DecodeString(nonceB64)
	plaintext, err := v.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("decrypting for rotation: %w", err)
	}
	return v.Set(ctx, name, string(plaintext))
}

func (v *Vault) logAccess(ctx context.Context, name, caller string, found bool) {
	_, _ = v.db.ExecContext(ctx, `
		INSERT INTO credential_access_log (id, name, caller, timestamp, found)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), name, caller, time.Now().UTC(), found)
}

// AuditLog returns access records, newest first. Pass empty name for all
// records; limit <= 0 means no limit.
func (v *Vault) AuditLog(ctx context.Context, name string, limit int) ([]AccessRecord, error) {
	query := `SELECT id, name, caller, timestamp, found FROM credential_access_log`
	args := []interface{}{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var records []AccessRecord
	for rows.Next() {
		var r AccessRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Caller, &r.Timestamp, &r.Found); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
