package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/internal/interface/middleware"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/oauth"
	"github.com/oksasatya/saas-auth/pkg/validation"
)

var (
	testNow   = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	testUser  = &entity.User{ID: "11111111-1111-1111-1111-111111111111", Email: "ana@example.com", Name: "Ana", Role: entity.RoleCustomer}
	testPair  = application.TokenPair{SessionToken: "sess-token", SessionExpiry: testNow.Add(24 * time.Hour), RefreshToken: "refresh-token", RefreshExpiry: testNow.Add(168 * time.Hour)}
	errBoom   = errors.New("boom")
	adminUser = middleware.Identity{UserID: "admin-1", Email: "root@example.com", Role: entity.RoleAdmin, SessionID: "sid"}
)

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Error   struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	validation.Init()
	return gin.New()
}

func withIdentity(id middleware.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetIdentity(c, id)
		c.Next()
	}
}

func postJSON(r http.Handler, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func testCookies() *helpers.CookieManager {
	m := helpers.NewCookieManager("", false)
	m.Now = func() time.Time { return testNow }
	return m
}

// ---- auth ----

type stubAuth struct {
	registerErr error
	emailSent   bool
	noSession   bool
	login       *application.LoginResult
	loginErr    error
	refreshErr  error
	loggedOut   string
	gotRefresh  string
}

func (s *stubAuth) Register(_ context.Context, in application.RegisterInput) (*application.AuthResult, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	u := *testUser
	u.Email = in.Email
	if s.noSession {
		return &application.AuthResult{User: &u, EmailSent: s.emailSent}, nil
	}
	return &application.AuthResult{User: &u, Tokens: testPair, EmailSent: s.emailSent, SessionIssued: true}, nil
}

func (s *stubAuth) Login(context.Context, string, string) (*application.LoginResult, error) {
	return s.login, s.loginErr
}

func (s *stubAuth) LoginTwoFactor(_ context.Context, in application.TwoFactorLoginInput) (*application.LoginResult, error) {
	if in.Code == "" && in.BackupCode == "" {
		return nil, application.ErrTwoFactorRequired
	}
	return &application.LoginResult{User: testUser, Tokens: &testPair, BackupCodesLow: true, BackupCodesRemaining: 2}, nil
}

func (s *stubAuth) VerifyEmail(_ context.Context, token string) (*entity.User, error) {
	if token != "good" {
		return nil, application.ErrInvalidOrExpiredToken
	}
	u := *testUser
	u.EmailVerified = true
	return &u, nil
}

func (s *stubAuth) ResendVerification(context.Context, string) (bool, error) { return true, nil }

func (s *stubAuth) ForgotPassword(context.Context, string) string {
	return application.ForgotPasswordMessage
}

func (s *stubAuth) ResetPassword(context.Context, string, string) error { return nil }

func (s *stubAuth) Refresh(_ context.Context, token string) (*entity.User, application.TokenPair, error) {
	s.gotRefresh = token
	if s.refreshErr != nil {
		return nil, application.TokenPair{}, s.refreshErr
	}
	return testUser, testPair, nil
}

func (s *stubAuth) Logout(_ context.Context, userID string) error {
	s.loggedOut = userID
	return nil
}

func authRouter(svc *stubAuth, logger *logrus.Logger) *gin.Engine {
	r := newTestEngine()
	h := NewAuthHandler(svc, logger, testCookies())
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/login-2fa", h.LoginTwoFactor)
	r.POST("/verify-email", h.VerifyEmail)
	r.POST("/forgot-password", h.ForgotPassword)
	r.POST("/refresh", h.Refresh)
	r.POST("/logout", withIdentity(middleware.Identity{UserID: testUser.ID}), h.Logout)
	return r
}

func TestRegister_SetsRefreshCookieAndReturnsSession(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{emailSent: true}, logger)

	w := postJSON(r, "/register", `{"email":"ana@example.com","password":"correct horse","name":"Ana"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	e := decode(t, w)
	assert.True(t, e.Success)
	assert.Equal(t, true, e.Meta["email_sent"])

	var body sessionResponse
	require.NoError(t, json.Unmarshal(e.Data, &body))
	assert.Equal(t, "sess-token", body.Token)
	assert.Equal(t, "ana@example.com", body.User.Email)

	c := cookie(w, helpers.RefreshCookie)
	require.NotNil(t, c)
	assert.Equal(t, "refresh-token", c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, int((168 * time.Hour).Seconds()), c.MaxAge)
	assert.NotContains(t, w.Body.String(), "refresh-token")
}

func TestRegister_Validation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{}, logger)

	w := postJSON(r, "/register", `{"email":"not-an-email","password":"short"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	e := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", e.Error.Code)
	assert.Equal(t, "min length 8", e.Error.Details["password"])
	assert.Contains(t, e.Error.Details, "email")
}

func TestRegister_WithoutSessionStillCreated(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{emailSent: true, noSession: true}, logger)

	w := postJSON(r, "/register", `{"email":"ana@example.com","password":"correct horse"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	e := decode(t, w)
	assert.Equal(t, false, e.Meta["session_issued"])
	assert.NotContains(t, string(e.Data), "token")
	assert.Contains(t, string(e.Data), "ana@example.com")
	assert.Nil(t, cookie(w, helpers.RefreshCookie))
}

func TestRegister_PasswordOverBcryptLimit(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := authRouter(&stubAuth{}, logger)

	w := postJSON(r, "/register", `{"email":"ana@example.com","password":"`+strings.Repeat("a", 73)+`"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	e := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", e.Error.Code)
	assert.Equal(t, "max length 72 bytes", e.Error.Details["password"])

	// 30 three-byte runes pass the binding and are refused by the service.
	r = authRouter(&stubAuth{registerErr: application.ErrPasswordTooLong}, logger)
	w = postJSON(r, "/register", `{"email":"ana@example.com","password":"`+strings.Repeat("€", 30)+`"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	e = decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", e.Error.Code)
	assert.Equal(t, "max length 72 bytes", e.Error.Details["password"])
	assert.Empty(t, hook.AllEntries())
}

func TestRegister_EmailTaken(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{registerErr: application.ErrEmailTaken}, logger)

	w := postJSON(r, "/register", `{"email":"ana@example.com","password":"correct horse"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMAIL_TAKEN", decode(t, w).Error.Code)
}

func TestLogin_TwoFactorRequiredIssuesNoSession(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{login: &application.LoginResult{User: testUser, RequiresTwoFactor: true}}, logger)

	w := postJSON(r, "/login", `{"email":"ana@example.com","password":"correct horse"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"requires_two_factor":true}`, string(decode(t, w).Data))
	assert.Nil(t, cookie(w, helpers.RefreshCookie))
}

func TestLogin_InvalidCredentials(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{loginErr: application.ErrInvalidCredentials}, logger)

	w := postJSON(r, "/login", `{"email":"ana@example.com","password":"nope nope"}`)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w).Error.Code)
}

func TestLogin_UnexpectedErrorIsLoggedAndHidden(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := authRouter(&stubAuth{loginErr: errBoom}, logger)

	w := postJSON(r, "/login", `{"email":"ana@example.com","password":"correct horse"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	e := decode(t, w)
	assert.Equal(t, "INTERNAL_ERROR", e.Error.Code)
	assert.NotContains(t, w.Body.String(), "boom")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestLoginTwoFactor_ReportsLowBackupCodes(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{}, logger)

	w := postJSON(r, "/login-2fa", `{"email":"ana@example.com","password":"correct horse","backup_code":"ABCD1234"}`)

	require.Equal(t, http.StatusOK, w.Code)
	e := decode(t, w)
	assert.Equal(t, true, e.Meta["backup_codes_low"])
	assert.Equal(t, float64(2), e.Meta["backup_codes_remaining"])
	assert.NotNil(t, cookie(w, helpers.RefreshCookie))
}

func TestLoginTwoFactor_BadCodeFormat(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{}, logger)

	w := postJSON(r, "/login-2fa", `{"email":"ana@example.com","password":"correct horse","code":"12ab56"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "must be a 6 digit code", decode(t, w).Error.Details["code"])
}

func TestVerifyEmail(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{}, logger)

	w := postJSON(r, "/verify-email", `{"token":"good"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var u userResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &u))
	assert.True(t, u.EmailVerified)

	w = postJSON(r, "/verify-email", `{"token":"stale"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_OR_EXPIRED_TOKEN", decode(t, w).Error.Code)
}

func TestForgotPassword_ConstantMessage(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := authRouter(&stubAuth{}, logger)

	w := postJSON(r, "/forgot-password", `{"email":"nobody@example.com"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, application.ForgotPasswordMessage, decode(t, w).Message)
}

func TestRefresh(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("missing cookie", func(t *testing.T) {
		r := authRouter(&stubAuth{}, logger)
		w := postJSON(r, "/refresh", `{}`)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "AUTHENTICATION_REQUIRED", decode(t, w).Error.Code)
	})

	t.Run("rotates", func(t *testing.T) {
		svc := &stubAuth{}
		r := authRouter(svc, logger)
		w := postJSON(r, "/refresh", `{}`, &http.Cookie{Name: helpers.RefreshCookie, Value: "old"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "old", svc.gotRefresh)
		assert.Equal(t, "refresh-token", cookie(w, helpers.RefreshCookie).Value)
	})

	t.Run("rejected clears cookie", func(t *testing.T) {
		r := authRouter(&stubAuth{refreshErr: application.ErrInvalidCredentials}, logger)
		w := postJSON(r, "/refresh", `{}`, &http.Cookie{Name: helpers.RefreshCookie, Value: "old"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		c := cookie(w, helpers.RefreshCookie)
		require.NotNil(t, c)
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	})
}

func TestLogout_EndsSessionForCaller(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc := &stubAuth{}
	r := authRouter(svc, logger)

	w := postJSON(r, "/logout", `{}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testUser.ID, svc.loggedOut)
	assert.Less(t, cookie(w, helpers.RefreshCookie).MaxAge, 0)
}

// ---- user ----

type stubUsers struct {
	avatarType  string
	avatarBytes int
	profileIn   application.UpdateProfileInput
}

func (s *stubUsers) Me(_ context.Context, id string) (*entity.User, error) {
	if id != testUser.ID {
		return nil, application.ErrUserNotFound
	}
	return testUser, nil
}

func (s *stubUsers) UpdateProfile(_ context.Context, _ string, in application.UpdateProfileInput) (*application.ProfileResult, error) {
	s.profileIn = in
	u := *testUser
	if in.Name != nil {
		u.Name = *in.Name
	}
	return &application.ProfileResult{User: &u}, nil
}

func (s *stubUsers) UploadAvatar(_ context.Context, _ string, r io.Reader, contentType string) (*entity.User, error) {
	s.avatarType = contentType
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.avatarBytes = len(b)
	if contentType != "image/png" {
		return nil, application.ErrUnsupportedFileType
	}
	u := *testUser
	u.AvatarURL = "https://storage.googleapis.com/bucket/avatars/x.png"
	return &u, nil
}

func (s *stubUsers) ChangePassword(_ context.Context, _, current, _ string) error {
	if current != "old password" {
		return application.ErrInvalidCredentials
	}
	return nil
}

func userRouter(svc *stubUsers) *gin.Engine {
	logger, _ := test.NewNullLogger()
	r := newTestEngine()
	h := NewUserHandler(svc, logger)
	g := r.Group("/", withIdentity(middleware.Identity{UserID: testUser.ID}))
	g.GET("/me", h.Me)
	g.PUT("/profile", h.UpdateProfile)
	g.POST("/avatar", h.UploadAvatar)
	g.POST("/change-password", h.ChangePassword)
	return r
}

func multipartAvatar(t *testing.T, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestMe(t *testing.T) {
	w := get(userRouter(&stubUsers{}), "/me")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")
	assert.NotContains(t, w.Body.String(), "backup")
}

func TestUpdateProfile_OnlyProvidedFields(t *testing.T) {
	svc := &stubUsers{}
	req := httptest.NewRequest(http.MethodPut, "/profile", strings.NewReader(`{"name":"Ana B"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.profileIn.Name)
	assert.Equal(t, "Ana B", *svc.profileIn.Name)
	assert.Nil(t, svc.profileIn.Email)
	assert.Nil(t, svc.profileIn.AvatarURL)
}

func TestUploadAvatar_SniffsContentType(t *testing.T) {
	svc := &stubUsers{}
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 1000)...)

	w := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(w, multipartAvatar(t, png))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", svc.avatarType)
	assert.Equal(t, len(png), svc.avatarBytes)
}

func TestUploadAvatar_RejectsNonImage(t *testing.T) {
	svc := &stubUsers{}

	w := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(w, multipartAvatar(t, []byte("plain text pretending to be png")))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", decode(t, w).Error.Code)
	assert.True(t, strings.HasPrefix(svc.avatarType, "text/plain"))
}

func TestUploadAvatar_MissingFile(t *testing.T) {
	w := postJSON(userRouter(&stubUsers{}), "/avatar", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "is required", decode(t, w).Error.Details["avatar"])
}

func TestChangePassword(t *testing.T) {
	r := userRouter(&stubUsers{})

	w := postJSON(r, "/change-password", `{"current_password":"old password","new_password":"new password"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(r, "/change-password", `{"current_password":"wrong","new_password":"new password"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/change-password", `{"current_password":"old password","new_password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---- two-factor ----

type stubTwoFactor struct {
	setupErr error
	proof    application.TwoFactorProof
}

func (s *stubTwoFactor) SetupTwoFactor(context.Context, string) (*application.TwoFactorSetup, error) {
	if s.setupErr != nil {
		return nil, s.setupErr
	}
	return &application.TwoFactorSetup{Secret: "JBSWY3DPEHPK3PXP", URI: "otpauth://totp/Shop:ana", QRCode: "data:image/png;base64,AAAA"}, nil
}

func (s *stubTwoFactor) ConfirmTwoFactor(_ context.Context, _, code string) ([]string, error) {
	if code != "123456" {
		return nil, application.ErrInvalidTwoFactorCode
	}
	return []string{"AAAA1111", "BBBB2222"}, nil
}

func (s *stubTwoFactor) DisableTwoFactor(_ context.Context, _ string, proof application.TwoFactorProof) error {
	s.proof = proof
	if proof == (application.TwoFactorProof{}) {
		return application.ErrTwoFactorProofRequired
	}
	return nil
}

func (s *stubTwoFactor) RegenerateBackupCodes(context.Context, string, string) ([]string, error) {
	return nil, application.ErrBackupCodesChanged
}

func twoFactorRouter(svc *stubTwoFactor) *gin.Engine {
	logger, _ := test.NewNullLogger()
	r := newTestEngine()
	h := NewTwoFactorHandler(svc, logger)
	g := r.Group("/", withIdentity(middleware.Identity{UserID: testUser.ID}))
	g.POST("/setup", h.Setup)
	g.POST("/confirm", h.Confirm)
	g.POST("/disable", h.Disable)
	g.POST("/backup-codes", h.BackupCodes)
	return r
}

func TestTwoFactorSetup(t *testing.T) {
	w := postJSON(twoFactorRouter(&stubTwoFactor{}), "/setup", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"secret":"JBSWY3DPEHPK3PXP","uri":"otpauth://totp/Shop:ana","qr_code":"data:image/png;base64,AAAA"}`,
		string(decode(t, w).Data))
}

func TestTwoFactorSetup_AlreadyEnabled(t *testing.T) {
	w := postJSON(twoFactorRouter(&stubTwoFactor{setupErr: application.ErrTwoFactorAlreadyEnabled}), "/setup", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TWO_FACTOR_ALREADY_ENABLED", decode(t, w).Error.Code)
}

func TestTwoFactorConfirm(t *testing.T) {
	r := twoFactorRouter(&stubTwoFactor{})

	w := postJSON(r, "/confirm", `{"code":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"backup_codes":["AAAA1111","BBBB2222"]}`, string(decode(t, w).Data))

	w = postJSON(r, "/confirm", `{"code":"654321"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTwoFactorDisable(t *testing.T) {
	svc := &stubTwoFactor{}
	r := twoFactorRouter(svc)

	w := postJSON(r, "/disable", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TWO_FACTOR_PROOF_REQUIRED", decode(t, w).Error.Code)

	w = postJSON(r, "/disable", `{"password":"correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "correct horse", svc.proof.Password)
}

func TestTwoFactorBackupCodes_Conflict(t *testing.T) {
	w := postJSON(twoFactorRouter(&stubTwoFactor{}), "/backup-codes", `{"code":"123456"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "BACKUP_CODES_CHANGED", decode(t, w).Error.Code)
}

// ---- oauth ----

type stubOAuth struct {
	urlErr      error
	callbackErr error
	gotCode     string
}

func (s *stubOAuth) OAuthAuthorizationURL(p oauth.Provider, state string) (string, error) {
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return "https://idp.example.com/" + string(p) + "?state=" + url.QueryEscape(state), nil
}

func (s *stubOAuth) OAuthCallback(_ context.Context, _ oauth.Provider, code string) (*application.AuthResult, error) {
	s.gotCode = code
	if s.callbackErr != nil {
		return nil, s.callbackErr
	}
	return &application.AuthResult{User: testUser, Tokens: testPair}, nil
}

const testFrontend = "https://shop.example.com"

func oauthRouter(svc *stubOAuth) *gin.Engine {
	logger, _ := test.NewNullLogger()
	r := newTestEngine()
	h := NewOAuthHandler(svc, logger, testCookies(), testFrontend)
	r.GET("/oauth/:provider", h.Start)
	r.GET("/oauth/:provider/callback", h.Callback)
	return r
}

func TestOAuthStart_RedirectsWithStateCookie(t *testing.T) {
	w := get(oauthRouter(&stubOAuth{}), "/oauth/google")

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)

	c := cookie(w, helpers.OAuthStateCookie)
	require.NotNil(t, c)
	assert.NotEmpty(t, c.Value)
	assert.Equal(t, c.Value, loc.Query().Get("state"))
	assert.Equal(t, int(oauthStateTTL.Seconds()), c.MaxAge)
}

func TestOAuthStart_Errors(t *testing.T) {
	w := get(oauthRouter(&stubOAuth{}), "/oauth/myspace")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testFrontend+"/login?error=unknown_provider", w.Header().Get("Location"))

	w = get(oauthRouter(&stubOAuth{urlErr: oauth.ErrProviderNotConfigured}), "/oauth/github")
	assert.Equal(t, testFrontend+"/login?error=oauth_not_configured", w.Header().Get("Location"))
	assert.Nil(t, cookie(w, helpers.OAuthStateCookie))
}

func TestOAuthCallback(t *testing.T) {
	state := &http.Cookie{Name: helpers.OAuthStateCookie, Value: "state-123"}

	t.Run("success", func(t *testing.T) {
		svc := &stubOAuth{}
		w := get(oauthRouter(svc), "/oauth/google/callback?state=state-123&code=abc", state)

		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, testFrontend+"/oauth-callback?provider=google&token=sess-token", w.Header().Get("Location"))
		assert.Equal(t, "abc", svc.gotCode)
		assert.Equal(t, "refresh-token", cookie(w, helpers.RefreshCookie).Value)
		assert.Less(t, cookie(w, helpers.OAuthStateCookie).MaxAge, 0)
	})

	cases := []struct {
		name    string
		path    string
		cookies []*http.Cookie
		svc     *stubOAuth
		want    string
	}{
		{"state mismatch", "/oauth/google/callback?state=other&code=abc", []*http.Cookie{state}, &stubOAuth{}, "invalid_state"},
		{"no state cookie", "/oauth/google/callback?state=state-123&code=abc", nil, &stubOAuth{}, "invalid_state"},
		{"denied", "/oauth/google/callback?error=access_denied&state=state-123", []*http.Cookie{state}, &stubOAuth{}, "access_denied"},
		{"missing code", "/oauth/google/callback?state=state-123", []*http.Cookie{state}, &stubOAuth{}, "missing_code"},
		{"provider failure", "/oauth/github/callback?state=state-123&code=abc", []*http.Cookie{state}, &stubOAuth{callbackErr: oauth.ErrExternalService}, "provider_error"},
		{"unexpected", "/oauth/github/callback?state=state-123&code=abc", []*http.Cookie{state}, &stubOAuth{callbackErr: errBoom}, "oauth_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(oauthRouter(tc.svc), tc.path, tc.cookies...)
			require.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, testFrontend+"/login?error="+tc.want, w.Header().Get("Location"))
			assert.Nil(t, cookie(w, helpers.RefreshCookie))
		})
	}
}

// ---- admin ----

type stubAdmin struct {
	actor, target, role string
	page, perPage       int
	docs                []entity.UserDocument
	searchErr           error
}

func (s *stubAdmin) ListUsers(_ context.Context, page, perPage int) (*application.UserPage, error) {
	s.page, s.perPage = page, perPage
	return &application.UserPage{Users: []entity.User{*testUser}, Total: 41, Page: 3, PerPage: 20}, nil
}

func (s *stubAdmin) UpdateUserRole(_ context.Context, actorID, targetID, role string) (*entity.User, error) {
	s.actor, s.target, s.role = actorID, targetID, role
	u := *testUser
	u.Role = entity.RoleModerator
	return &u, nil
}

func (s *stubAdmin) SearchUsers(context.Context, string, int) ([]entity.UserDocument, error) {
	return s.docs, s.searchErr
}

func adminRouter(svc *stubAdmin) *gin.Engine {
	logger, _ := test.NewNullLogger()
	r := newTestEngine()
	h := NewAdminHandler(svc, logger)
	g := r.Group("/", withIdentity(adminUser))
	g.GET("/users", h.List)
	g.PUT("/users/role", h.UpdateRole)
	g.GET("/users/search", h.Search)
	return r
}

func TestAdminList_PassesPagingAndReturnsMeta(t *testing.T) {
	svc := &stubAdmin{}
	w := get(adminRouter(svc), "/users?page=3&per_page=abc")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, svc.page)
	assert.Equal(t, 0, svc.perPage)
	e := decode(t, w)
	assert.Equal(t, float64(41), e.Meta["total"])
	assert.Equal(t, float64(20), e.Meta["per_page"])
}

func TestAdminUpdateRole_UsesCallerAsActor(t *testing.T) {
	svc := &stubAdmin{}
	req := httptest.NewRequest(http.MethodPut, "/users/role",
		strings.NewReader(`{"user_id":"`+testUser.ID+`","role":"moderator"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	adminRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, adminUser.UserID, svc.actor)
	assert.Equal(t, testUser.ID, svc.target)
	assert.Equal(t, "moderator", svc.role)
}

func TestAdminUpdateRole_RejectsUnknownRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/users/role",
		strings.NewReader(`{"user_id":"`+testUser.ID+`","role":"owner"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	adminRouter(&stubAdmin{}).ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Error.Details, "role")
}

func TestAdminSearch(t *testing.T) {
	w := get(adminRouter(&stubAdmin{docs: []entity.UserDocument{{ID: testUser.ID, Email: testUser.Email}}}), "/users/search?q=ana")
	require.Equal(t, http.StatusOK, w.Code)
	e := decode(t, w)
	assert.Equal(t, float64(1), e.Meta["count"])
	var docs []entity.UserDocument
	require.NoError(t, json.Unmarshal(e.Data, &docs))
	assert.Equal(t, testUser.Email, docs[0].Email)

	w = get(adminRouter(&stubAdmin{}), "/users/search?q=nobody")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w).Meta["count"])

	w = get(adminRouter(&stubAdmin{searchErr: application.ErrSearchUnavailable}), "/users/search?q=ana")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SEARCH_UNAVAILABLE", decode(t, w).Error.Code)
}
