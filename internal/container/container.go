package container

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/config"
	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/internal/infrastructure/cache"
	pginfra "github.com/oksasatya/saas-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/saas-auth/internal/infrastructure/search"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/mailer"
	"github.com/oksasatya/saas-auth/pkg/mailer/templates"
	"github.com/oksasatya/saas-auth/pkg/oauth"
	"github.com/oksasatya/saas-auth/pkg/totp"
)

// Container holds the components built at startup. Modules receive it explicitly.
type Container struct {
	Config  *config.Config
	Logger  *logrus.Logger
	PG      *pgxpool.Pool
	Redis   *redis.Client
	JWT     *helpers.JWTManager
	Cookies *helpers.CookieManager
	Service *application.Service

	closers []func()
}

// New connects to Postgres and Redis and wires the optional integrations that are configured.
// GCS and Elasticsearch failures disable the feature instead of aborting startup.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.PG = pool
	c.onClose(pool.Close)

	c.Redis = helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	c.onClose(func() { _ = c.Redis.Close() })
	if err := helpers.PingRedis(ctx, c.Redis); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	sender, closeSender, err := NewMailSender(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.onClose(closeSender)

	c.JWT = helpers.NewJWTManager(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.JWTTTL, cfg.JWTRefreshTTL)
	c.Cookies = helpers.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure)

	engine := totp.NewEngine(cfg.TOTPIssuer)
	deps := application.Deps{
		Users:    pginfra.NewUserRepository(pool),
		Accounts: pginfra.NewOAuthAccountRepository(pool),
		Hasher:   helpers.NewPasswordHasher(cfg.BcryptCost),
		JWT:      c.JWT,
		TOTP:     engine,
		OAuth:    newOAuthClient(cfg),
		Sessions: cache.NewSessionStore(c.Redis),
		Steps:    cache.NewTOTPStepGuard(c.Redis, engine.ReplayWindow()),
		Mail:     sender,
		Logger:   logger,
		Brand: templates.Brand{
			AppName:        cfg.AppName,
			CompanyName:    cfg.CompanyName,
			CompanyAddress: cfg.CompanyAddress,
			LogoURL:        cfg.LogoURL,
			SupportURL:     cfg.SupportURL,
		},
		Links:          application.Links{VerifyEmail: cfg.VerifyEmailURL, ResetPassword: cfg.ResetPasswordURL},
		VerifyTokenTTL: cfg.VerifyTokenTTL,
		ResetTokenTTL:  cfg.ResetTokenTTL,
		MailTimeout:    cfg.MailSendTimeout,
	}

	if cfg.GCSBucket != "" {
		gcs, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
		if err != nil {
			logger.WithError(err).Warn("gcs unavailable, avatar upload disabled")
		} else {
			c.onClose(func() { _ = gcs.Close() })
			deps.Avatars = helpers.NewGCSUploader(gcs, cfg.GCSBucket)
		}
	}

	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := search.NewClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.WithError(err).Warn("elasticsearch unavailable, user search disabled")
		} else {
			idx := search.NewUserIndex(es, cfg.ESUsersIndex)
			if err := idx.EnsureIndex(ctx); err != nil {
				logger.WithError(err).Warn("ensure users index failed")
			}
			deps.Index = idx
		}
	}

	c.Service = application.NewService(deps)
	return c, nil
}

func newOAuthClient(cfg *config.Config) *oauth.Client {
	return oauth.NewClient(cfg.OAuthHTTPTimeout, map[oauth.Provider]oauth.ProviderConfig{
		oauth.Google: {
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		},
		oauth.GitHub: {
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		},
	})
}

func (c *Container) onClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// NewMailSender picks the delivery backend named by MAIL_DRIVER.
// The returned func releases the backend's connection, if any.
func NewMailSender(cfg *config.Config, logger *logrus.Logger) (mailer.Sender, func(), error) {
	noop := func() {}
	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = cfg.FromName + " <" + cfg.FromEmail + ">"
	}
	switch cfg.MailDriver {
	case "queue":
		q, err := helpers.DialRabbitQueue(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue, 0)
		if err != nil {
			return nil, noop, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return mailer.NewQueueSender(q), q.Close, nil
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" {
			return nil, noop, fmt.Errorf("MAIL_DRIVER=mailgun requires MAILGUN_DOMAIN and MAILGUN_API_KEY")
		}
		return mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, from, cfg.MailSendTimeout), noop, nil
	case "smtp":
		return &mailer.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.FromEmail,
			FromName: cfg.FromName,
			Timeout:  cfg.MailSendTimeout,
		}, noop, nil
	case "log", "":
		return mailer.LogSender{Logger: logger}, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown MAIL_DRIVER %q", cfg.MailDriver)
}
