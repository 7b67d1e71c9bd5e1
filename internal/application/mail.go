package application

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/pkg/mailer"
	"github.com/oksasatya/saas-auth/pkg/mailer/templates"
)

func (s *Service) send(ctx context.Context, data templates.EmailData) error {
	subject, text, html, err := templates.Render(data.Type, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", data.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.MailTimeout)
	defer cancel()
	return s.Mail.Send(ctx, mailer.Message{To: data.Email, Subject: subject, HTML: html, Text: text})
}

// notify sends a message whose failure must not fail the caller. It reports whether it went out.
func (s *Service) notify(ctx context.Context, u *entity.User, data templates.EmailData) bool {
	if err := s.send(ctx, data); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).WithField("template", data.Type).Warn("send email failed")
		return false
	}
	return true
}

func withToken(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Service) sendVerification(ctx context.Context, u *entity.User, token string, expires time.Time) bool {
	data := templates.NewVerifyEmailData(s.Brand, u.Name, u.Email, withToken(s.Links.VerifyEmail, token),
		templates.WithExpiresAt(expires), templates.WithTime(s.now()))
	return s.notify(ctx, u, data)
}
