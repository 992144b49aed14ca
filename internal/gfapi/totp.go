package gfapi

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
	"time"
)

// TOTPのデフォルトパラメータ。GameFlip APIの検証側仕様に合わせる。
const (
	totpDigits = 6
	totpPeriod = 30 // 秒
)

// totpSigner はRFC 6238のワンタイムパスワードを生成する。
// シークレットはbase32エンコードされた共有鍵。
// トークンは30秒ウィンドウごとに変わるため、呼び出しごとに再計算し、キャッシュしない。
type totpSigner struct {
	secret    string
	algorithm string // SHA1（デフォルト） / SHA256 / SHA512
	digits    int
	period    int
}

// newTOTPSigner はデフォルトパラメータ（SHA-1、6桁、30秒周期）のsignerを生成する。
func newTOTPSigner(secret string) *totpSigner {
	return &totpSigner{
		secret:    secret,
		algorithm: "SHA1",
		digits:    totpDigits,
		period:    totpPeriod,
	}
}

// Code は指定時刻のワンタイムパスワードを生成する。
func (s *totpSigner) Code(now time.Time) (string, error) {
	key, err := decodeBase32Secret(s.secret)
	if err != nil {
		return "", fmt.Errorf("gfapi: invalid TOTP secret: %w", err)
	}

	counter := now.Unix() / int64(s.period)

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hashFunc(s.algorithm)
	if err != nil {
		return "", err
	}

	mac := hmac.New(hf, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// RFC 4226 動的切り詰め
	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < s.digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", s.digits, code%mod), nil
}

// decodeBase32Secret はbase32シークレットをデコードする。
// 小文字・空白・パディングの揺れを許容する。
func decodeBase32Secret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalized)
}

// hashFunc はアルゴリズム名に対応するハッシュ関数を返す。
func hashFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "SHA1", "":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("gfapi: unsupported TOTP algorithm: %s", algorithm)
	}
}
