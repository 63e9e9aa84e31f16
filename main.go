package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/memory/v2"
	fiberredis "github.com/gofiber/storage/redis/v3"
	"github.com/khanghh/koauth/internal/audit"
	"github.com/khanghh/koauth/internal/auth"
	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/common"
	"github.com/khanghh/koauth/internal/config"
	"github.com/khanghh/koauth/internal/handlers"
	"github.com/khanghh/koauth/internal/handlers/api"
	"github.com/khanghh/koauth/internal/handlers/web"
	"github.com/khanghh/koauth/internal/mail"
	"github.com/khanghh/koauth/internal/middlewares"
	"github.com/khanghh/koauth/internal/middlewares/captcha"
	"github.com/khanghh/koauth/internal/middlewares/sessions"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/render"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/internal/social"
	"github.com/khanghh/koauth/internal/store"
	"github.com/khanghh/koauth/internal/users"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
	clientNameFlag = &cli.StringFlag{
		Name:     "name",
		Usage:    "Client display name",
		Required: true,
	}
	clientOwnerFlag = &cli.StringFlag{
		Name:  "owner",
		Usage: "Username of the client owner",
		Value: "admin",
	}
	clientRedirectFlag = &cli.StringSliceFlag{
		Name:  "redirect-uri",
		Usage: "Allowed redirect uri, the first one is the default",
	}
	clientCredentialsFlag = &cli.BoolFlag{
		Name:  "credentials-flow",
		Usage: "Allow the client_credentials grant",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "koauth - OAuth2 and OpenID Connect authorization server"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name:  "version",
			Usage: "Print version information",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
		{
			Name:   "sweep",
			Usage:  "Delete expired codes and tokens once",
			Action: sweep,
		},
		{
			Name:  "client",
			Usage: "Manage OAuth clients",
			Subcommands: []*cli.Command{
				{
					Name:   "create",
					Usage:  "Register a client and print its credentials",
					Flags:  []cli.Flag{clientNameFlag, clientOwnerFlag, clientRedirectFlag, clientCredentialsFlag},
					Action: createClient,
				},
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustLoadConfig(ctx *cli.Context) *config.Config {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		os.Exit(1)
	}
	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))
	return cfg
}

func mustInitDatabase(cfg *config.Config) *gorm.DB {
	var dialector gorm.Dialector
	if cfg.MySQL.Dsn != "" {
		dialector = mysql.Open(cfg.MySQL.Dsn)
	} else {
		dialector = sqlite.Open(cfg.SQLite.Path)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   cfg.MySQL.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if len(cfg.MySQL.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.MySQL.Replicas))
		for _, dsn := range cfg.MySQL.Replicas {
			replicas = append(replicas, mysql.Open(dsn))
		}
		err := db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			slog.Error("Failed to register database replicas", "error", err)
			os.Exit(1)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Failed to access database pool", "error", err)
		os.Exit(1)
	}
	if cfg.MySQL.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	}
	if cfg.MySQL.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(cfg.MySQL.ConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	return db
}

// mustInitStorage returns the KV storage for sessions, authorize flows and
// login states. rdb is nil with the memory backend.
func mustInitStorage(cfg *config.Config) (store.Storage, redis.UniversalClient) {
	switch cfg.Session.Backend {
	case "redis":
		redisStorage := fiberredis.New(fiberredis.Config{
			URL:           cfg.Redis.URL,
			PoolSize:      cfg.Redis.PoolSize,
			IsClusterMode: cfg.Redis.ClusterMode,
		})
		return store.NewRedisStorage(redisStorage.Conn()), redisStorage.Conn()
	case "memory":
		slog.Warn("Using in-memory storage, sessions are lost on restart")
		return store.NewKVStorage(memory.New()), nil
	}
	slog.Error("Unsupported session backend", "backend", cfg.Session.Backend)
	os.Exit(1)
	return nil, nil
}

func mustInitMailSender(mailCfg config.MailConfig) mail.MailSender {
	switch mailCfg.Backend {
	case "":
		slog.Warn("No mail backend configured, security alerts are not sent")
		return mail.NopSender{}
	case "smtp":
		sender, err := mail.NewSMTPMailSender(mail.SMTPConfig{
			Host:     mailCfg.SMTP.Host,
			Port:     mailCfg.SMTP.Port,
			Username: mailCfg.SMTP.Username,
			Password: mailCfg.SMTP.Password,
			TLS:      mailCfg.SMTP.TLS,
			CertFile: mailCfg.SMTP.CertFile,
			KeyFile:  mailCfg.SMTP.KeyFile,
			CAFile:   mailCfg.SMTP.CAFile,
		}, mailCfg.From)
		if err != nil {
			slog.Error("Failed to init SMTP mail sender", "error", err)
			os.Exit(1)
		}
		return sender
	}
	slog.Error("Unsupported mail sender backend", "backend", mailCfg.Backend)
	os.Exit(1)
	return nil
}

func mustInitCaptchaVerifier(captchaCfg config.CaptchaConfig) captcha.CaptchaVerifier {
	if captchaCfg.Provider == "turnstile" {
		return captcha.NewTurnstileVerifier(captchaCfg.Turnstile.SecretKey)
	}
	return captcha.NewNullVerifier()
}

func mustInitOAuthProviders(cfg *config.Config) []social.Provider {
	var providers []social.Provider
	for _, providerName := range slices.Sorted(maps.Keys(cfg.AuthProviders.OAuth)) {
		providerCfg := cfg.AuthProviders.OAuth[providerName]
		callbackURL, _ := url.JoinPath(cfg.BaseURL, "oauth", providerName, "callback")
		provider, err := social.NewProvider(providerName, callbackURL, providerCfg.ClientID, providerCfg.ClientSecret)
		if err != nil {
			slog.Error("Unsupported OAuth provider", "provider", providerName)
			os.Exit(1)
		}
		providers = append(providers, provider)
	}
	return providers
}

func run(ctx *cli.Context) error {
	cfg := mustLoadConfig(ctx)

	globalVars := fiber.Map{
		"siteName": cfg.SiteName,
		"baseURL":  cfg.BaseURL,
	}
	if cfg.Captcha.Provider == "turnstile" {
		globalVars["turnstileSiteKey"] = cfg.Captcha.Turnstile.SiteKey
	}
	if err := render.Initialize(globalVars, cfg.TemplateDir); err != nil {
		slog.Error("Failed to initialize templates", "error", err)
		return err
	}

	db := mustInitDatabase(cfg)
	kvStorage, rdb := mustInitStorage(cfg)
	mailSender := mustInitMailSender(cfg.Mail)
	captcha.SetVerifier(mustInitCaptchaVerifier(cfg.Captcha))

	// repositories
	var (
		repos         = oauth.NewRepositories(db)
		userOAuthRepo = repo.New[model.UserOAuth](db)
		auditRepo     = repo.New[model.AuditEvent](db)
	)

	// services
	var (
		recorder         = audit.NewRecorder(auditRepo, repos.Users, mailSender, time.Now)
		opts             = oauth.Options{Clock: time.Now, Auditor: recorder}
		tokenCodec       = codec.New(cfg.OAuth.Issuer, cfg.OAuth.FallbackSecret, time.Now)
		scopes           = oauth.NewScopeCatalog(cfg.OAuth.Scopes)
		consentGate      = oauth.NewConsentGate(repos, cfg.OAuth.TrustedDomains)
		clientRegistry   = oauth.NewClientRegistry(repos)
		tokenService     = oauth.NewTokenService(repos, tokenCodec, opts)
		accessGuard      = oauth.NewAccessGuard(repos, opts)
		userService      = users.NewUserService(repos.Users, userOAuthRepo)
		sweeper          = oauth.NewSweeper(repos, cfg.OAuth.SweepInterval, opts)
		authorizeService = oauth.NewAuthorizeService(oauth.AuthorizeConfig{
			AuthorizeURL: "/authorize",
			LoginURL:     "/login",
			ConsentURL:   "/consent",
		}, repos, tokenCodec, scopes, consentGate, kvStorage, opts)
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		Views:         render.NewViewEngine(cfg.TemplateDir),
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	router.Use(middlewares.InjectGlobalVars(globalVars))

	handlers.SetupRoutes(router, handlers.Dependencies{
		StaticDir: cfg.StaticDir,
		SessionConfig: sessions.Config{
			Storage:        store.StorageWithPrefix(kvStorage, params.SessionKeyPrefix),
			SessionMaxAge:  cfg.Session.SessionMaxAge,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHttpOnly: cfg.Session.CookieHttpOnly,
			CookieName:     cfg.Session.CookieName,
		},
		Registry:         auth.NewDefaultRegistry(clientRegistry, accessGuard),
		AuthorizeService: authorizeService,
		UserService:      userService,
		Activity:         recorder,
		TokenService:     tokenService,
		AccessGuard:      accessGuard,
		LoginStates:      web.NewLoginStates(tokenCodec, kvStorage),
		OAuthProviders:   mustInitOAuthProviders(cfg),
		Discovery:        api.NewDiscoveryHandler(tokenCodec.Issuer(), cfg.BaseURL, scopes),
	})

	bgCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go sweeper.Run(bgCtx)
	go recorder.Run(bgCtx)
	go common.StartHealthCheckServer(bgCtx, done, rdb, db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func sweep(ctx *cli.Context) error {
	cfg := mustLoadConfig(ctx)
	db := mustInitDatabase(cfg)
	sweeper := oauth.NewSweeper(oauth.NewRepositories(db), cfg.OAuth.SweepInterval, oauth.Options{})
	stats, err := sweeper.SweepOnce(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d access tokens, %d refresh tokens, %d codes\n", stats.AccessTokens, stats.RefreshTokens, stats.Codes)
	return nil
}

func createClient(ctx *cli.Context) error {
	cfg := mustLoadConfig(ctx)
	db := mustInitDatabase(cfg)
	registry := oauth.NewClientRegistry(oauth.NewRepositories(db))
	client, err := registry.Register(ctx.Context,
		ctx.String(clientOwnerFlag.Name),
		ctx.String(clientNameFlag.Name),
		ctx.StringSlice(clientRedirectFlag.Name),
		ctx.Bool(clientCredentialsFlag.Name),
	)
	if err != nil {
		return err
	}
	fmt.Printf("client_id:     %s\nclient_secret: %s\n", client.ClientID, client.ClientSecret)
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
