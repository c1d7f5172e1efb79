package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/mstrand/foyer/internal/auth"
	"github.com/mstrand/foyer/internal/handlers"
	"github.com/mstrand/foyer/internal/middleware"
)

// RegisterRoutes registers all application routes under /api/account.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	accountHandler *handlers.AccountHandler,
	tokenManager *auth.TokenManager,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	router.Route("/api/account", func(r chi.Router) {
		// Session extraction is optional everywhere; each handler decides
		// whether a missing session is a 403.
		r.Use(auth.Middleware(tokenManager))

		// Credential and code endpoints are rate limited by IP.
		r.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/signup", authHandler.Signup)
		r.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/signin", authHandler.Signin)
		r.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/email_confirm/resend", authHandler.ResendConfirmation)
		r.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/password_reset", accountHandler.ResetPassword)
		r.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/password", accountHandler.SetPassword)

		// Confirmation links arrive from mail clients; no rate limit so a
		// legitimate click never bounces.
		r.Get("/email_confirm", authHandler.ConfirmEmail)

		r.Post("/logout", authHandler.Logout)

		r.Get("/", accountHandler.Me)
		r.Post("/email", accountHandler.ChangeEmail)
		r.Post("/password_change", accountHandler.ChangePassword)
		r.Post("/avatar", accountHandler.ChangeAvatar)
	})
}
