package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/copier"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/user-switching/pkg/audit"
	"github.com/tendant/user-switching/pkg/capability"
	"github.com/tendant/user-switching/pkg/client"
	"github.com/tendant/user-switching/pkg/config"
	"github.com/tendant/user-switching/pkg/login"
	"github.com/tendant/user-switching/pkg/nonce"
	"github.com/tendant/user-switching/pkg/notification"
	"github.com/tendant/user-switching/pkg/olduser"
	"github.com/tendant/user-switching/pkg/ratelimit"
	"github.com/tendant/user-switching/pkg/sessions"
	"github.com/tendant/user-switching/pkg/switching"
	"github.com/tendant/user-switching/pkg/switching/api"
	"github.com/tendant/user-switching/pkg/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.Users.Store == "postgres" || cfg.Session.Store == "postgres" {
		dbConfig := cfg.Database.ToDbConfig()
		pool, err = dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User, "err", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	users, err := newUserRepository(cfg.Users, pool)
	if err != nil {
		slog.Error("Failed creating user store", "store", cfg.Users.Store, "err", err)
		os.Exit(1)
	}
	if err := seedUsers(ctx, users, cfg.Users.SeedPassword); err != nil {
		slog.Error("Failed seeding users", "err", err)
		os.Exit(1)
	}

	var revocations sessions.Repository = sessions.NewInMemoryRepository()
	if cfg.Session.Store == "postgres" {
		revocations = sessions.NewPostgresRepository(pool)
	}
	go purgeExpiredSessions(ctx, revocations, cfg.Session.PurgeInterval)

	sessionOpts, stackOpts, err := storeOptions(cfg)
	if err != nil {
		slog.Error("Failed building store options", "err", err)
		os.Exit(1)
	}
	sess := sessions.NewManager(cfg.Session.JwtSecret, sessionOpts, revocations)
	stack := olduser.NewStore(sess.Tokens(), stackOpts)

	roles, err := capability.NewCasbinRoleSource(cfg.Capability.PolicyFile)
	if err != nil {
		slog.Error("Failed loading capability policy", "file", cfg.Capability.PolicyFile, "err", err)
		os.Exit(1)
	}
	caps := capability.NewEngine(users, roles, capability.WithUnrestrictedRole(cfg.Capability.UnrestrictedRole))
	capability.RegisterSwitching(caps)

	auditor := audit.NewMiddleware(audit.Config{Source: "switchd"})
	engine := switching.NewEngine(users, stack, sess, auditor)

	var notifier *notification.SwitchNotifier
	if cfg.Email.Enabled {
		nm, err := notification.NewNotificationManagerWithOptions(cfg.Site.URL,
			notification.WithSMTP(cfg.Email.ToSMTPConfig()),
			notification.WithDefaultTemplates(),
		)
		if err != nil {
			slog.Error("Failed creating notification manager", "err", err)
			os.Exit(1)
		}
		notifier = notification.NewSwitchNotifier(nm, users)
		engine.AddObserver(notifier)
	}

	nonces := nonce.NewService(cfg.Nonce.Secret, cfg.Nonce.TTL, cfg.Nonce.ReplayCacheSize)
	switchHandle := api.NewHandle(engine, caps, nonces, sess, api.Config{
		Prefix:   cfg.Stack.Prefix,
		SiteURL:  cfg.Site.URL,
		HomeURL:  cfg.Site.HomeURL,
		AdminURL: cfg.Site.AdminURL,
		UsersURL: cfg.Site.UsersURL,
	})

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	var limiter *ratelimit.Middleware
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewMiddleware(cfg.RateLimit.ToMiddlewareConfig("/auth/login"))
	}

	server.R.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Use(sess.Middleware())
		if limiter != nil {
			r.Use(limiter.Handler)
		}

		r.Mount("/auth", login.Routes(login.NewHandle(user.NewService(users), sess, engine)))
		r.With(auditor.AuditAuthMiddleware).Mount(cfg.Stack.Prefix, switchHandle.Routes())

		r.With(client.RequireAuth).Get("/admin/users", listUsers(users, switchHandle.Links()))
	})

	slog.Info("Starting switch service", "prefix", cfg.Stack.Prefix, "site", cfg.Site.URL, "users", cfg.Users.Store, "sessions", cfg.Session.Store)
	server.Run()
	if notifier != nil {
		notifier.Wait()
	}
}

// storeOptions copies the cookie settings into the session and stack options.
func storeOptions(cfg config.Config) (sessions.Options, olduser.Options, error) {
	var sessionOpts sessions.Options
	if err := copier.Copy(&sessionOpts, &cfg.Session); err != nil {
		return sessions.Options{}, olduser.Options{}, fmt.Errorf("failed to copy session options: %w", err)
	}
	sessionOpts.SiteURL = cfg.Site.URL

	var stackOpts olduser.Options
	if err := copier.Copy(&stackOpts, &cfg.Stack); err != nil {
		return sessions.Options{}, olduser.Options{}, fmt.Errorf("failed to copy stack options: %w", err)
	}
	stackOpts.SiteURL = cfg.Site.URL
	return sessionOpts, stackOpts, nil
}

func newUserRepository(cfg config.UserStoreConfig, pool *pgxpool.Pool) (user.Repository, error) {
	switch cfg.Store {
	case "file":
		return user.NewFileRepository(cfg.DataDir)
	case "postgres":
		return user.NewPostgresRepository(pool), nil
	default:
		return user.NewInMemoryRepository(), nil
	}
}

// seedUsers creates the demo administrator "1" and editor "2" when the store is empty.
func seedUsers(ctx context.Context, repo user.Repository, password string) error {
	existing, err := repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	svc := user.NewService(repo)
	for _, u := range []user.User{
		{ID: "1", Login: "admin", DisplayName: "Administrator", Email: "admin@example.com", Roles: []string{"administrator"}},
		{ID: "2", Login: "editor", DisplayName: "Editor", Email: "editor@example.com", Roles: []string{"editor"}},
	} {
		created, err := svc.CreateUser(ctx, u, password)
		if err != nil {
			return err
		}
		slog.Info("Seeded user", "user", created)
	}
	return nil
}

func purgeExpiredSessions(ctx context.Context, repo sessions.Repository, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := repo.DeleteExpired(ctx); err != nil {
				slog.Error("Failed purging expired sessions", "err", err)
			}
		}
	}
}

type userListEntry struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	SwitchURL   string `json:"switch_url,omitempty"`
}

// listUsers is a stand-in for the host's user list screen, with a switch
// link next to every account the viewer may switch to.
func listUsers(users user.Repository, links *api.Links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := users.ListUsers(r.Context())
		if err != nil {
			slog.Error("Failed listing users", "err", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		out := make([]userListEntry, 0, len(all))
		for _, u := range all {
			out = append(out, userListEntry{
				ID:          u.ID,
				Login:       u.Login,
				DisplayName: u.DisplayName,
				SwitchURL:   links.MaybeSwitchURL(r, u.ID),
			})
		}
		render.JSON(w, r, out)
	}
}
