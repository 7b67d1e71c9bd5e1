package templates

import (
	"strings"
	"time"
)

// Brand carries the company details printed in every email.
type Brand struct {
	AppName        string
	CompanyName    string
	CompanyAddress string
	LogoURL        string
	SupportURL     string
}

// Option pattern
type Option func(*EmailData)

func WithIP(ip string) Option { return func(d *EmailData) { d.IP = strings.TrimSpace(ip) } }

func WithTime(t time.Time) Option {
	return func(d *EmailData) { d.Time = t.UTC().Format("02 January 2006, 15:04 MST") }
}

func WithExpiresAt(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format("02 January 2006, 15:04 MST")
	}
}

func newData(b Brand, typ, name, email, actionURL string, opts ...Option) EmailData {
	d := EmailData{
		Name:           name,
		Email:          email,
		Type:           typ,
		AppName:        b.AppName,
		CompanyName:    b.CompanyName,
		CompanyAddress: b.CompanyAddress,
		LogoURL:        b.LogoURL,
		SupportURL:     b.SupportURL,
		ActionURL:      actionURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewVerifyEmailData(b Brand, name, email, verifyURL string, opts ...Option) EmailData {
	return newData(b, VerifyEmail, name, email, verifyURL, opts...)
}

func NewForgotPasswordData(b Brand, name, email, resetURL string, opts ...Option) EmailData {
	return newData(b, ForgotPassword, name, email, resetURL, opts...)
}

func NewWelcomeData(b Brand, name, email string, opts ...Option) EmailData {
	return newData(b, Welcome, name, email, "", opts...)
}

func NewPasswordChangedData(b Brand, name, email string, opts ...Option) EmailData {
	return newData(b, PasswordChanged, name, email, "", opts...)
}

func NewTwoFactorEnabledData(b Brand, name, email string, opts ...Option) EmailData {
	return newData(b, TwoFactorEnabled, name, email, "", opts...)
}
