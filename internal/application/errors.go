package application

import "errors"

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrEmailTaken            = errors.New("email already registered")
	ErrPasswordTooShort      = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong       = errors.New("password must be at most 72 bytes")
	ErrUserNotFound          = errors.New("user not found")
	ErrAlreadyVerified       = errors.New("email already verified")
	ErrNoPassword            = errors.New("account has no password set")

	ErrTwoFactorRequired       = errors.New("two-factor code required")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorNotSetUp       = errors.New("two-factor setup has not been started")
	ErrInvalidTwoFactorCode    = errors.New("invalid two-factor code")
	ErrTwoFactorProofRequired  = errors.New("password, authenticator code or backup code required")
	ErrBackupCodesChanged      = errors.New("backup codes changed concurrently")

	ErrInvalidRole         = errors.New("invalid role")
	ErrOwnRole             = errors.New("cannot change your own role")
	ErrStorageUnavailable  = errors.New("avatar storage not configured")
	ErrSearchUnavailable   = errors.New("user search not configured")
	ErrUnsupportedFileType = errors.New("avatar must be an image")
)
