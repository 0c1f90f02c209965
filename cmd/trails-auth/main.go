package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/trailhead-run/go-trails-auth"
	"github.com/trailhead-run/go-trails-auth/stats"
)

// App holds the wired subsystems of the demo API server.
type App struct {
	cfg     auth.SimpleConfig
	db      *bun.DB
	repo    auth.RepositoryManager
	reviews stats.Reviews
	auth    *auth.Auther
	auther  *auth.RouteAuthenticator
	srv     router.Server[*fiber.App]
}

func main() {
	cfg := auth.SimpleConfig{
		SigningKey:           envOr("TRAILS_SIGNING_KEY", ""),
		ContextKey:           "jwt",
		Issuer:               "trails-api",
		Audience:             []string{"trails-clients"},
		ResetTokenExpiration: envOr("TRAILS_RESET_EXPIRATION", "10m"),
		Debug:                os.Getenv("TRAILS_DEBUG") == "true",
	}

	if cfg.SigningKey == "" {
		fmt.Fprintln(os.Stderr, "TRAILS_SIGNING_KEY is required")
		os.Exit(1)
	}

	app := &App{cfg: cfg}

	ctx := context.Background()

	if err := withPersistence(ctx, app, envOr("TRAILS_DSN", "file:trails.db?cache=shared")); err != nil {
		fmt.Fprintf(os.Stderr, "persistence: %v\n", err)
		os.Exit(1)
	}

	if err := withAuth(app); err != nil {
		fmt.Fprintf(os.Stderr, "auth: %v\n", err)
		os.Exit(1)
	}

	withHTTPServer(app)

	go app.srv.Serve(envOr("TRAILS_ADDR", ":8572"))

	waitExitSignal()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func withPersistence(ctx context.Context, app *App, dsn string) error {
	db, err := auth.OpenDB(dsn)
	if err != nil {
		return err
	}

	if err := runMigrations(ctx, db); err != nil {
		return err
	}

	app.db = db
	app.repo = auth.NewRepositoryManager(db)
	app.reviews = stats.NewReviewsRepository(db, stats.NewToursRepository(db))

	return app.repo.Validate()
}

// runMigrations applies the embedded SQL files in lexical order. A real
// deployment would use a migration runner with version tracking; the demo
// schema is idempotent (CREATE TABLE IF NOT EXISTS) so re-running is safe.
func runMigrations(ctx context.Context, db *bun.DB) error {
	migrations, err := auth.MigrationsFS()
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sqlBytes, err := fs.ReadFile(migrations, name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}

	return nil
}

func withAuth(app *App) error {
	provider := auth.NewUserProvider(app.repo.Users())

	app.auth = auth.NewAuthenticator(provider, app.cfg)

	auther, err := auth.NewHTTPAuthenticator(app.auth, app.cfg)
	if err != nil {
		return err
	}
	app.auther = auther

	return nil
}

func withHTTPServer(app *App) {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	api := srv.Router()

	protected := auth.NewSessionGate(app.cfg, app.auth.TokenService(), app.repo.Users(), app.auther.APIErrorHandler)
	staffOnly := auth.RequireRoles(app.cfg, app.auther.APIErrorHandler, auth.RoleAdmin, auth.RoleLeadGuide)

	auth.RegisterAuthRoutes(api,
		auth.WithControllerRepo(app.repo),
		auth.WithControllerAuther(app.auther),
		auth.WithControllerAuthenticator(app.auth),
		auth.WithControllerBaseURL(os.Getenv("TRAILS_BASE_URL")),
		auth.WithControllerProtected(protected),
		auth.WithControllerDebug(app.cfg.IsDebug()),
	)

	api.Get("/me", profileShow(app), protected)
	api.Delete("/me", profileDeactivate(app), protected)
	api.Post("/tours/:tour_id/reviews", reviewCreate(app), protected)
	api.Delete("/reviews/:id", reviewDelete(app), protected, staffOnly)

	app.srv = srv
}

func profileShow(app *App) router.HandlerFunc {
	return func(c router.Context) error {
		user, ok := auth.FromContext(c.Context())
		if !ok {
			return app.auther.APIErrorHandler(c, auth.ErrNotLoggedIn)
		}

		return c.JSON(router.StatusOK, map[string]any{
			"status": "success",
			"data":   map[string]any{"user": user},
		})
	}
}

// profileDeactivate soft-disables the account; the row survives but every
// active-only lookup stops returning it.
func profileDeactivate(app *App) router.HandlerFunc {
	return func(c router.Context) error {
		user, ok := auth.FromContext(c.Context())
		if !ok {
			return app.auther.APIErrorHandler(c, auth.ErrNotLoggedIn)
		}

		if err := app.repo.Users().Deactivate(c.Context(), user.ID); err != nil {
			return app.auther.APIErrorHandler(c, err)
		}

		app.auther.Logout(c)

		return c.JSON(router.StatusNoContent, map[string]any{
			"status": "success",
		})
	}
}

type reviewPayload struct {
	Review string `form:"review" json:"review"`
	Rating int    `form:"rating" json:"rating"`
}

func reviewCreate(app *App) router.HandlerFunc {
	return func(c router.Context) error {
		user, ok := auth.FromContext(c.Context())
		if !ok {
			return app.auther.APIErrorHandler(c, auth.ErrNotLoggedIn)
		}

		tourID, err := uuid.Parse(c.Param("tour_id", ""))
		if err != nil {
			return app.auther.APIErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid tour id").
				WithCode(goerrors.CodeBadRequest))
		}

		payload := new(reviewPayload)
		if err := c.Bind(payload); err != nil {
			return app.auther.APIErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
				WithCode(goerrors.CodeBadRequest))
		}

		review, err := app.reviews.CreateReview(c.Context(), &stats.Review{
			ID:     uuid.New(),
			Review: payload.Review,
			Rating: payload.Rating,
			TourID: tourID,
			UserID: user.ID,
		})
		if err != nil {
			return app.auther.APIErrorHandler(c, err)
		}

		return c.JSON(router.StatusCreated, map[string]any{
			"status": "success",
			"data":   map[string]any{"review": review},
		})
	}
}

func reviewDelete(app *App) router.HandlerFunc {
	return func(c router.Context) error {
		id, err := uuid.Parse(c.Param("id", ""))
		if err != nil {
			return app.auther.APIErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid review id").
				WithCode(goerrors.CodeBadRequest))
		}

		review, err := app.reviews.GetByID(c.Context(), id.String())
		if err != nil {
			return app.auther.APIErrorHandler(c, err)
		}

		if err := app.reviews.DeleteReview(c.Context(), review); err != nil {
			return app.auther.APIErrorHandler(c, err)
		}

		return c.JSON(router.StatusNoContent, map[string]any{
			"status": "success",
		})
	}
}

func waitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
