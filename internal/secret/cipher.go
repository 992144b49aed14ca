// Package secret はAPIシークレットの保管時暗号化を提供する。
// AES-256-GCMによる認証付き暗号化で、blobレイアウトは nonce(12) || authTag(16) || ciphertext。
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/hitoshi/gfbay/internal/config"
)

const (
	nonceSize = 12
	tagSize   = 16
	keySize   = 32
)

// ErrDecryptionFailed は認証タグ不一致またはblob破損による復号失敗を表す。
// 鍵違いと改ざんは区別できないため、呼び出し側はこのエラーのみで分岐する。
var ErrDecryptionFailed = errors.New("secret: decryption failed")

// devKeyPassphrase は非本番環境向けのフォールバック鍵のパスフレーズ。
// ハッシュ結果が一定であることに意味がある（暗号化済みフィクスチャを再起動後も復号できる）。
const devKeyPassphrase = "dev-gameflip-key"

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// Cipher はシークレットの暗号化・復号を行う。
type Cipher struct {
	key []byte
}

// New は32バイト鍵からCipherを生成する。
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("secret: key must be %d bytes, got %d", keySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// NewFromConfig は設定から鍵を解決してCipherを生成する。
// CREDENTIALS_ENCRYPTION_KEYはhex（全文字がhexの場合）またはbase64でエンコードされた
// ちょうど32バイトの鍵である必要がある。
// 非本番環境では鍵未設定時に固定パスフレーズのSHA-256ハッシュをフォールバック鍵とする。
// 本番環境で鍵が未設定の場合はエラーを返す（起動時に致命的エラーとする）。
func NewFromConfig(cfg *config.Config) (*Cipher, error) {
	key, err := resolveKey(cfg)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// resolveKey は設定からAES鍵を解決する。
func resolveKey(cfg *config.Config) ([]byte, error) {
	raw := cfg.CredentialsEncryptionKey
	if raw != "" {
		var key []byte
		var err error
		if hexPattern.MatchString(raw) {
			key, err = hex.DecodeString(raw)
		} else {
			key, err = base64.StdEncoding.DecodeString(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("secret: failed to decode CREDENTIALS_ENCRYPTION_KEY: %w", err)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("secret: CREDENTIALS_ENCRYPTION_KEY must be %d bytes (hex or base64), got %d", keySize, len(key))
		}
		return key, nil
	}

	if !cfg.IsProduction() {
		sum := sha256.Sum256([]byte(devKeyPassphrase))
		return sum[:], nil
	}

	return nil, errors.New("secret: CREDENTIALS_ENCRYPTION_KEY is required in production")
}

// Encrypt は平文を暗号化し、base64エンコードされたblobを返す。
// 呼び出しごとに新しいランダムな96ビットnonceを生成する。
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("secret: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secret: failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: failed to generate nonce: %w", err)
	}

	// GoのGCM実装は ciphertext || tag を返すため、
	// nonce || tag || ciphertext のblobレイアウトに並べ替える。
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, nonceSize+tagSize+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt はbase64エンコードされたblobを復号して平文を返す。
// 認証タグ不一致・blob破損の場合はErrDecryptionFailedを返し、
// 不正な平文を返すことは決してない。
func (c *Cipher) Decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(blob) < nonceSize+tagSize {
		return "", ErrDecryptionFailed
	}

	nonce := blob[:nonceSize]
	tag := blob[nonceSize : nonceSize+tagSize]
	ciphertext := blob[nonceSize+tagSize:]

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("secret: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secret: failed to create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
