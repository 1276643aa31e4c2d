// Command authflow serves the authentication flow over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/authflow/pkg/accounts"
	"github.com/dmitrymomot/authflow/pkg/auth"
	"github.com/dmitrymomot/authflow/pkg/authhttp"
	"github.com/dmitrymomot/authflow/pkg/config"
	"github.com/dmitrymomot/authflow/pkg/environment"
	"github.com/dmitrymomot/authflow/pkg/file"
	"github.com/dmitrymomot/authflow/pkg/httpserver"
	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/logger"
	"github.com/dmitrymomot/authflow/pkg/pg"
	"github.com/dmitrymomot/authflow/pkg/provider"
	"github.com/dmitrymomot/authflow/pkg/redis"
	"github.com/dmitrymomot/authflow/pkg/requestid"
	"github.com/dmitrymomot/authflow/pkg/storefront"
)

type appConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Name    string `env:"APP_NAME" envDefault:"authflow"`
	Backend string `env:"AUTH_BACKEND" envDefault:"storefront"` // storefront, kakao or google
	Durable string `env:"AUTH_DURABLE_STORE" envDefault:"redis"` // redis or memory
	// Used by the kakao and google backends only.
	Accounts     string `env:"ACCOUNTS_STORE" envDefault:"postgres"` // postgres or memory
	Avatars      string `env:"AVATAR_STORE" envDefault:"local"`      // local, s3 or none
	AvatarDir    string `env:"AVATAR_DIR" envDefault:"./data/avatars"`
	AvatarPrefix string `env:"AVATAR_URL_PREFIX" envDefault:"/avatars/"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("authflow stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	var (
		authCfg   auth.Config
		httpCfg   authhttp.Config
		serverCfg httpserver.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&authCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&serverCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	var (
		checks   []httpserver.Check
		cleanups []httpserver.Option
	)

	stores := authhttp.Stores{Memory: kvstore.NewMemory(0, nil)}
	switch cfg.Durable {
	case "redis":
		var rcfg redis.Config
		if err := config.Load(&rcfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, rcfg)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, httpserver.WithCleanup(func(context.Context) error { return client.Close() }))
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})

		ring, err := authhttp.DeriveKeyRing(httpCfg.Secret, httpCfg.PrevSecret)
		if err != nil {
			return err
		}
		durable := redis.NewStorage(client)
		codec := auth.SignedCodec{Keys: ring.Storage()}
		stores.Session, stores.Durable = durable, durable
		stores.SessionCodec, stores.DurableCodec = codec, codec
	case "memory":
		stores.Session = kvstore.NewMemory(0, nil)
	default:
		return fmt.Errorf("unknown AUTH_DURABLE_STORE %q", cfg.Durable)
	}

	backends, err := newBackends(ctx, cfg, authCfg, stores.Session, log, &checks, &cleanups)
	if err != nil {
		return err
	}

	factory := authhttp.NewFactory(backends, stores, authCfg, auth.WithLogger(log))
	h, err := authhttp.NewHandler(httpCfg, factory, authhttp.WithLogger(log))
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		requestid.AccessLog(log),
		environment.Middleware(environment.Parse(cfg.Env)),
	)
	r.Get("/health/live", httpserver.HealthCheckHandler(log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(log, checks...))
	r.Mount("/auth", h.Routes())
	if cfg.Backend != "storefront" && cfg.Avatars == "local" {
		r.Handle(cfg.AvatarPrefix+"*", http.StripPrefix(cfg.AvatarPrefix, http.FileServer(http.Dir(cfg.AvatarDir))))
	}

	srv := httpserver.NewFromConfig(serverCfg, append(cleanups,
		httpserver.WithLogger(log),
		httpserver.WithCleanup(func(context.Context) error { h.Close(); return nil }),
	)...)
	return srv.Run(ctx, r)
}

// newBackends returns the per-client backend constructor for cfg.Backend.
func newBackends(ctx context.Context, cfg appConfig, authCfg auth.Config, shared kvstore.Store, log *slog.Logger, checks *[]httpserver.Check, cleanups *[]httpserver.Option) (authhttp.BackendFunc, error) {
	if cfg.Backend == "storefront" {
		var scfg storefront.Config
		if err := config.Load(&scfg); err != nil {
			return nil, err
		}
		if _, err := storefront.New(scfg); err != nil {
			return nil, err
		}
		// Each client gets its own cookie jar and so its own storefront
		// session, persisted next to the client's auth session.
		return func(clientID string, store kvstore.Store) (auth.Backend, error) {
			return storefront.New(scfg,
				storefront.WithLogger(log.With(logger.ClientID(clientID))),
				storefront.WithCookieStore(store, authCfg.SessionTTL),
			)
		}, nil
	}

	var adapter provider.Adapter
	switch cfg.Backend {
	case provider.NameKakao:
		var kcfg provider.KakaoConfig
		if err := config.Load(&kcfg); err != nil {
			return nil, err
		}
		adapter = provider.NewKakaoAdapter(kcfg)
	case provider.NameGoogle:
		var gcfg provider.GoogleConfig
		if err := config.Load(&gcfg); err != nil {
			return nil, err
		}
		adapter = provider.NewGoogleAdapter(gcfg)
	default:
		return nil, fmt.Errorf("unknown AUTH_BACKEND %q", cfg.Backend)
	}

	dir, err := newDirectory(ctx, cfg, log, checks, cleanups)
	if err != nil {
		return nil, err
	}
	svc := accounts.NewService(dir, adapter.Name(), accounts.WithLogger(log))

	opts := []provider.BackendOption{
		provider.WithLogger(log),
		provider.WithProfileStore(shared),
		provider.WithProfileTTL(authCfg.DurableTierTTL),
	}
	avatars, err := newAvatars(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if avatars != nil {
		opts = append(opts, provider.WithAvatars(avatars))
	}

	// The provider backend keeps no per-client state, so it is shared.
	backend := provider.NewBackend(adapter, svc, opts...)
	return func(string, kvstore.Store) (auth.Backend, error) { return backend, nil }, nil
}

func newDirectory(ctx context.Context, cfg appConfig, log *slog.Logger, checks *[]httpserver.Check, cleanups *[]httpserver.Option) (accounts.Directory, error) {
	switch cfg.Accounts {
	case "memory":
		log.Warn("accounts are kept in memory and lost on restart")
		return accounts.NewMemory(nil), nil
	case "postgres":
		var pcfg pg.Config
		if err := config.Load(&pcfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, pcfg)
		if err != nil {
			return nil, err
		}
		*cleanups = append(*cleanups, httpserver.WithCleanup(func(context.Context) error { pool.Close(); return nil }))
		*checks = append(*checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})

		if err := pg.MigrateFS(ctx, pool, accounts.Migrations, pcfg, log); err != nil {
			return nil, err
		}
		return accounts.NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unknown ACCOUNTS_STORE %q", cfg.Accounts)
	}
}

func newAvatars(ctx context.Context, cfg appConfig) (*file.Avatars, error) {
	var store file.Storage
	switch strings.ToLower(cfg.Avatars) {
	case "none", "":
		return nil, nil
	case "local":
		local, err := file.NewLocalStorage(cfg.AvatarDir, cfg.AvatarPrefix)
		if err != nil {
			return nil, err
		}
		store = local
	case "s3":
		var s3cfg file.S3Config
		if err := config.Load(&s3cfg); err != nil {
			return nil, err
		}
		s3, err := file.NewS3Storage(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		store = s3
	default:
		return nil, errors.New("unknown AVATAR_STORE " + cfg.Avatars)
	}
	return file.NewAvatars(store), nil
}
