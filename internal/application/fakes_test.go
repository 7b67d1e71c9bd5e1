package application

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	repo "github.com/oksasatya/saas-auth/internal/domain/repository"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/mailer"
	"github.com/oksasatya/saas-auth/pkg/mailer/templates"
	"github.com/oksasatya/saas-auth/pkg/oauth"
	"github.com/oksasatya/saas-auth/pkg/totp"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeUsers mirrors the conditional-update semantics of the Postgres repository.
type fakeUsers struct {
	mu    sync.Mutex
	seq   int
	byID  map[string]*entity.User
	order []string
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[string]*entity.User{}} }

func clone(u *entity.User) *entity.User {
	c := *u
	return &c
}

func (f *fakeUsers) find(pred func(*entity.User) bool) *entity.User {
	for _, id := range f.order {
		if u := f.byID[id]; pred(u) {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) insert(u *entity.User) error {
	if f.find(func(x *entity.User) bool { return x.Email == u.Email }) != nil {
		return repo.ErrDuplicate
	}
	f.seq++
	u.ID = "user-" + strconv.Itoa(f.seq)
	f.byID[u.ID] = clone(u)
	f.order = append(f.order, u.ID)
	return nil
}

func (f *fakeUsers) Create(_ context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(u)
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return clone(u), nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u := f.find(func(x *entity.User) bool { return x.Email == email }); u != nil {
		return clone(u), nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeUsers) List(_ context.Context, limit, offset int) ([]entity.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []entity.User{}
	for i := offset; i < len(f.order) && len(out) < limit; i++ {
		out = append(out, *f.byID[f.order[i]])
	}
	return out, len(f.order), nil
}

func (f *fakeUsers) update(id string, none error, fn func(u *entity.User) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || !fn(u) {
		return none
	}
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, in *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[in.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if f.find(func(x *entity.User) bool { return x.ID != in.ID && x.Email == in.Email }) != nil {
		return repo.ErrDuplicate
	}
	u.Email, u.Name, u.AvatarURL, u.EmailVerified = in.Email, in.Name, in.AvatarURL, in.EmailVerified
	u.EmailVerifyToken, u.EmailVerifyExpires = in.EmailVerifyToken, in.EmailVerifyExpires
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, hash string) error {
	return f.update(id, repo.ErrNotFound, func(u *entity.User) bool { u.PasswordHash = &hash; return true })
}

func (f *fakeUsers) UpdateRole(_ context.Context, id string, role entity.Role) error {
	return f.update(id, repo.ErrNotFound, func(u *entity.User) bool { u.Role = role; return true })
}

func (f *fakeUsers) SetEmailVerifyToken(_ context.Context, id, token string, expires time.Time) error {
	return f.update(id, repo.ErrNotFound, func(u *entity.User) bool {
		u.EmailVerifyToken, u.EmailVerifyExpires = &token, &expires
		return true
	})
}

func (f *fakeUsers) SetPasswordResetToken(_ context.Context, id, token string, expires time.Time) error {
	return f.update(id, repo.ErrNotFound, func(u *entity.User) bool {
		u.PasswordResetToken, u.PasswordResetExpires = &token, &expires
		return true
	})
}

// tokenUsable mirrors the repository's `expires > now` condition.
func tokenUsable(expires *time.Time, now time.Time) bool {
	return expires != nil && now.Before(*expires)
}

func (f *fakeUsers) ConsumeEmailVerifyToken(_ context.Context, token string, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.find(func(x *entity.User) bool {
		return x.EmailVerifyToken != nil && *x.EmailVerifyToken == token && tokenUsable(x.EmailVerifyExpires, now)
	})
	if u == nil {
		return "", repo.ErrNotFound
	}
	u.EmailVerified, u.EmailVerifyToken, u.EmailVerifyExpires = true, nil, nil
	return u.ID, nil
}

func (f *fakeUsers) ConsumePasswordResetToken(_ context.Context, token, newHash string, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.find(func(x *entity.User) bool {
		return x.PasswordResetToken != nil && *x.PasswordResetToken == token && tokenUsable(x.PasswordResetExpires, now)
	})
	if u == nil {
		return "", repo.ErrNotFound
	}
	u.PasswordHash, u.PasswordResetToken, u.PasswordResetExpires = &newHash, nil, nil
	return u.ID, nil
}

func (f *fakeUsers) SetTwoFactorSecret(_ context.Context, id, secret string) error {
	return f.update(id, repo.ErrConflict, func(u *entity.User) bool {
		if u.TwoFactorEnabled {
			return false
		}
		u.TwoFactorSecret = &secret
		return true
	})
}

func (f *fakeUsers) EnableTwoFactor(_ context.Context, id, codes string) error {
	return f.update(id, repo.ErrConflict, func(u *entity.User) bool {
		if u.TwoFactorEnabled || u.TwoFactorSecret == nil {
			return false
		}
		u.TwoFactorEnabled, u.BackupCodes = true, codes
		return true
	})
}

func (f *fakeUsers) DisableTwoFactor(_ context.Context, id string) error {
	return f.update(id, repo.ErrNotFound, func(u *entity.User) bool {
		u.TwoFactorEnabled, u.TwoFactorSecret, u.BackupCodes = false, nil, "[]"
		return true
	})
}

func (f *fakeUsers) ReplaceBackupCodes(_ context.Context, id, previous, next string) error {
	return f.update(id, repo.ErrConflict, func(u *entity.User) bool {
		if u.BackupCodes != previous {
			return false
		}
		u.BackupCodes = next
		return true
	})
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *fakeUsers) raw(id string) *entity.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.byID[id])
}

type fakeAccounts struct {
	mu    sync.Mutex
	users *fakeUsers
	rows  []entity.OAuthAccount
}

func (f *fakeAccounts) GetByProvider(_ context.Context, provider, id string) (*entity.OAuthAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].Provider == provider && f.rows[i].ProviderAccountID == id {
			a := f.rows[i]
			return &a, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeAccounts) insert(a *entity.OAuthAccount) error {
	for _, r := range f.rows {
		if r.Provider == a.Provider && r.ProviderAccountID == a.ProviderAccountID {
			return repo.ErrDuplicate
		}
	}
	a.ID = "acct-" + strconv.Itoa(len(f.rows)+1)
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeAccounts) Create(_ context.Context, a *entity.OAuthAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(a)
}

func (f *fakeAccounts) CreateWithUser(ctx context.Context, u *entity.User, a *entity.OAuthAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Provider == a.Provider && r.ProviderAccountID == a.ProviderAccountID {
			return repo.ErrDuplicate
		}
	}
	if err := f.users.Create(ctx, u); err != nil {
		return err
	}
	a.UserID = u.ID
	return f.insert(a)
}

func (f *fakeAccounts) UpdateTokens(_ context.Context, id, access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].AccessToken = access
			if refresh != "" {
				f.rows[i].RefreshToken = refresh
			}
			return nil
		}
	}
	return repo.ErrNotFound
}

type fakeSessions struct {
	mu      sync.Mutex
	sid     map[string]string
	saveErr error
}

func (f *fakeSessions) Save(_ context.Context, userID, _, sid string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sid[userID] = sid
	return nil
}

func (f *fakeSessions) Active(_ context.Context, userID, sid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sid[userID] == sid && sid != "", nil
}

func (f *fakeSessions) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sid, userID)
	return nil
}

type fakeSteps struct {
	last map[string]int64
	err  error
}

func (f *fakeSteps) Accept(_ context.Context, userID string, step int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if last, ok := f.last[userID]; ok && last >= step {
		return false, nil
	}
	f.last[userID] = step
	return true, nil
}

func (f *fakeSteps) Reset(_ context.Context, userID string) error {
	delete(f.last, userID)
	return nil
}

type fakeMail struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMail) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMail) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Subject)
	}
	return out
}

func (f *fakeMail) last() mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeIndex struct {
	docs map[string]entity.UserDocument
	err  error
}

func (f *fakeIndex) Index(_ context.Context, u *entity.User) error {
	if f.err != nil {
		return f.err
	}
	f.docs[u.ID] = u.Document()
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, size int) ([]entity.UserDocument, error) {
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []entity.UserDocument{}
	for _, id := range ids {
		if len(out) == size {
			break
		}
		out = append(out, f.docs[id])
	}
	return out, nil
}

type fakeAvatars struct {
	paths []string
}

func (f *fakeAvatars) Upload(_ context.Context, objectPath, _ string, r io.Reader) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.paths = append(f.paths, objectPath)
	return "https://cdn.example.com/" + objectPath, nil
}

type fakeOAuth struct {
	ident oauth.Identity
	err   error
}

func (f *fakeOAuth) AuthCodeURL(p oauth.Provider, state string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://provider.example.com/auth?provider=" + string(p) + "&state=" + state, nil
}

func (f *fakeOAuth) Exchange(_ context.Context, _ oauth.Provider, _ string) (oauth.Identity, error) {
	return f.ident, f.err
}

var errBoom = errors.New("boom")

type harness struct {
	svc      *Service
	users    *fakeUsers
	accounts *fakeAccounts
	sessions *fakeSessions
	steps    *fakeSteps
	mail     *fakeMail
	index    *fakeIndex
	avatars  *fakeAvatars
	oauth    *fakeOAuth
	clock    *fakeClock
	logs     *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	users := newFakeUsers()
	h := &harness{
		users:    users,
		accounts: &fakeAccounts{users: users},
		sessions: &fakeSessions{sid: map[string]string{}},
		steps:    &fakeSteps{last: map[string]int64{}},
		mail:     &fakeMail{},
		index:    &fakeIndex{docs: map[string]entity.UserDocument{}},
		avatars:  &fakeAvatars{},
		oauth:    &fakeOAuth{},
		clock:    clock,
		logs:     hook,
	}
	jwt := helpers.NewJWTManager("session-secret", "refresh-secret", 24*time.Hour, 7*24*time.Hour)
	jwt.Now = clock.Now
	h.svc = NewService(Deps{
		Users:    users,
		Accounts: h.accounts,
		Hasher:   &helpers.PasswordHasher{Cost: bcrypt.MinCost},
		JWT:      jwt,
		TOTP:     totp.NewEngine("Shop"),
		OAuth:    h.oauth,
		Sessions: h.sessions,
		Steps:    h.steps,
		Mail:     h.mail,
		Avatars:  h.avatars,
		Index:    h.index,
		Logger:   logger,
		Brand:    templates.Brand{AppName: "Shop", CompanyName: "Shop Inc"},
		Links: Links{
			VerifyEmail:   "https://shop.example.com/verify-email",
			ResetPassword: "https://shop.example.com/reset-password",
		},
		Now: clock.Now,
	})
	return h
}
