// Package totp wraps RFC 6238 one-time passwords for two-factor enrolment and login.
package totp

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultPeriod     = 30
	DefaultSkew       = 2
	DefaultSecretSize = 20
	DefaultQRSize     = 256
)

var ErrArtifactGeneration = errors.New("provisioning artifact generation failed")

// Engine holds the TOTP parameters shared by every user.
type Engine struct {
	Issuer     string
	Period     uint
	Skew       uint
	SecretSize uint
	QRSize     int
}

func NewEngine(issuer string) *Engine {
	return &Engine{
		Issuer:     issuer,
		Period:     DefaultPeriod,
		Skew:       DefaultSkew,
		SecretSize: DefaultSecretSize,
		QRSize:     DefaultQRSize,
	}
}

// Key is a freshly generated shared secret and its otpauth:// URI.
type Key struct {
	Secret string
	URI    string
}

func (e *Engine) GenerateSecret(account string) (Key, error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: account,
		Period:      e.Period,
		SecretSize:  e.SecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, fmt.Errorf("generate totp secret: %w", err)
	}
	return Key{Secret: k.Secret(), URI: k.URL()}, nil
}

// RenderQRCode encodes uri as a PNG QR code.
func (e *Engine) RenderQRCode(uri string) ([]byte, error) {
	code, err := qr.Encode(uri, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactGeneration, err)
	}
	size := e.QRSize
	if size <= 0 {
		size = DefaultQRSize
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactGeneration, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactGeneration, err)
	}
	return buf.Bytes(), nil
}

// RenderQRDataURL returns the QR code as a data:image/png;base64 URL for direct display.
func (e *Engine) RenderQRDataURL(uri string) (string, error) {
	b, err := e.RenderQRCode(uri)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

func (e *Engine) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    e.Period,
		Skew:      e.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Step returns the time-step counter containing t.
func (e *Engine) Step(t time.Time) int64 {
	return t.Unix() / int64(e.Period)
}

// ReplayWindow is how long after its first acceptance a code can still validate, plus one period of margin.
// A step guard must remember a spent step at least this long.
func (e *Engine) ReplayWindow() time.Duration {
	return time.Duration(e.Period*(2*e.Skew+2)) * time.Second
}

// Validate checks code against secret at t, accepting Skew steps either side.
// It returns the matched step so callers can refuse a step they already accepted.
func (e *Engine) Validate(secret, code string, t time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != otp.DigitsSix.Length() {
		return 0, false
	}
	opts := e.opts()
	current := e.Step(t)
	period := time.Duration(e.Period) * time.Second
	skew := int64(e.Skew)
	for offset := -skew; offset <= skew; offset++ {
		at := t.Add(time.Duration(offset) * period)
		want, err := totp.GenerateCodeCustom(secret, at, opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return current + offset, true
		}
	}
	return 0, false
}

// Verify reports whether code is valid for secret at t.
func (e *Engine) Verify(secret, code string, t time.Time) bool {
	_, ok := e.Validate(secret, code, t)
	return ok
}

// Code computes the code for secret at t. Used by tests and the seed tool.
func (e *Engine) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, e.opts())
}
