package api

import (
	"database/sql"
	"net/http"
	"net/netip"
	"time"

	"golang.org/x/time/rate"

	"github.com/erazemk/orozarna/internal/custody"
	"github.com/erazemk/orozarna/internal/model"
)

// Login attempts allowed per client address: a burst of 5, then one every 12s.
const (
	loginBurst = 5
	loginEvery = 12 * time.Second
)

// NewRouter creates the API router with all endpoints registered. Requests
// arriving from trustedProxies may name the client in X-Forwarded-For.
func NewRouter(db *sql.DB, svc *custody.Service, jwtSecret string, trustedProxies ...netip.Prefix) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db, Custody: svc}
	kitsHandler := &KitsHandler{Custody: svc}
	approvalsHandler := &ApprovalsHandler{Custody: svc}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireCapability(model.CanManageUsers)
	limiter := newLoginLimiter(rate.Every(loginEvery), loginBurst)

	// Public: login.
	mux.Handle("POST /api/auth/login", limiter.Middleware(http.HandlerFunc(authHandler.Login)))

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only), except a user's own history.
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))
	mux.Handle("GET /api/users/{id}/history", authMW(http.HandlerFunc(usersHandler.History)))

	// Kits: capability checks live in the custody service.
	mux.Handle("GET /api/kits", authMW(http.HandlerFunc(kitsHandler.List)))
	mux.Handle("POST /api/kits", authMW(http.HandlerFunc(kitsHandler.Register)))
	mux.Handle("GET /api/kits/{code}", authMW(http.HandlerFunc(kitsHandler.Get)))
	mux.Handle("GET /api/kits/{code}/history", authMW(http.HandlerFunc(kitsHandler.History)))
	mux.Handle("GET /api/kits/{code}/warnings", authMW(http.HandlerFunc(kitsHandler.Warnings)))
	mux.Handle("POST /api/kits/{code}/checkout", authMW(http.HandlerFunc(kitsHandler.Checkout)))
	mux.Handle("POST /api/kits/{code}/checkin", authMW(http.HandlerFunc(kitsHandler.Checkin)))
	mux.Handle("POST /api/kits/{code}/transfer", authMW(http.HandlerFunc(kitsHandler.Transfer)))
	mux.Handle("POST /api/kits/{code}/lost", authMW(http.HandlerFunc(kitsHandler.Lost)))
	mux.Handle("POST /api/kits/{code}/found", authMW(http.HandlerFunc(kitsHandler.Found)))
	mux.Handle("POST /api/kits/{code}/maintenance/open", authMW(http.HandlerFunc(kitsHandler.OpenMaintenance)))
	mux.Handle("POST /api/kits/{code}/maintenance/close", authMW(http.HandlerFunc(kitsHandler.CloseMaintenance)))
	mux.Handle("GET /api/warnings", authMW(http.HandlerFunc(kitsHandler.AllWarnings)))

	// Off-site approvals.
	mux.Handle("POST /api/approvals", authMW(http.HandlerFunc(approvalsHandler.Submit)))
	mux.Handle("GET /api/approvals", authMW(http.HandlerFunc(approvalsHandler.List)))
	mux.Handle("GET /api/approvals/{id}", authMW(http.HandlerFunc(approvalsHandler.Get)))
	mux.Handle("POST /api/approvals/{id}/decision", authMW(http.HandlerFunc(approvalsHandler.Decide)))

	clientAddr := ClientAddressMiddleware(trustedProxies)
	return RecoverMiddleware(RequestIDMiddleware(clientAddr(LoggingMiddleware(mux))))
}
