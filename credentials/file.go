package credentials

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FileProvider resolves credentials from a JSON file shaped as the nested
// mapping benchmark -> os -> version -> kind -> service -> credential.
// With a key the file is expected to be AES-256-GCM encrypted (nonce
// prepended, whole thing base64).
type FileProvider struct {
	path string
	key  []byte
	tree map[string]any
}

// NewFileProvider loads and (if key64 is non-empty) decrypts the file up
// front so a bad key or malformed file fails at startup, not mid-suite.
func NewFileProvider(path, key64 string) (*FileProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("credential file path not set (VM_CONFIG_FILE)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	p := &FileProvider{path: path}
	if key64 != "" {
		p.key, err = base64.StdEncoding.DecodeString(key64)
		if err != nil {
			return nil, fmt.Errorf("decoding encryption key: %w", err)
		}
		data, err = decrypt(data, p.key)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", path, err)
		}
	}

	if err := json.Unmarshal(data, &p.tree); err != nil {
		return nil, fmt.Errorf("parsing credential file %s: %w", path, err)
	}
	return p, nil
}

func (p *FileProvider) Lookup(_ context.Context, q Query) (Credential, error) {
	node := any(p.tree)
	for _, segment := range []string{q.Benchmark, q.OS, q.Version, q.Kind, q.Service} {
		m, ok := node.(map[string]any)
		if !ok {
			return Credential{}, fmt.Errorf("credential path %s: %q is not a mapping", q, segment)
		}
		node, ok = lookupFold(m, segment)
		if !ok {
			return Credential{}, fmt.Errorf("credential path %s: key %q not found in %s", q, segment, p.path)
		}
	}

	leaf, ok := node.(map[string]any)
	if !ok {
		return Credential{}, fmt.Errorf("credential path %s: leaf is not a mapping", q)
	}
	cred := Credential{
		IP:       stringAt(leaf, "ip"),
		Username: stringAt(leaf, "username"),
		Password: stringAt(leaf, "password"),
	}
	if !cred.complete() {
		return Credential{}, fmt.Errorf("credential path %s: incomplete entry (need ip, username, password)", q)
	}
	return cred, nil
}

// lookupFold finds a key case-insensitively. Exact matches win.
func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func stringAt(m map[string]any, key string) string {
	v, _ := lookupFold(m, key)
	s, _ := v.(string)
	return s
}

// GenerateKey returns a fresh base64 AES-256 key for the encrypted
// backend.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// EncryptFile encrypts a plain JSON credential file for checked-in use.
func EncryptFile(inPath, outPath, key64 string) error {
	key, err := base64.StdEncoding.DecodeString(key64)
	if err != nil {
		return fmt.Errorf("decoding encryption key: %w", err)
	}
	plain, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	enc, err := encrypt(plain, key)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, enc, 0o600)
}

func encrypt(plain, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nonce, nonce, plain, nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func decrypt(data, key []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	raw = raw[:n]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	return gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
}
