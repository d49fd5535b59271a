package api

import (
	"database/sql"
	"net/http"
)

// ImageBucket is the only blob bucket served by the API.
const ImageBucket = "item-images"

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	itemsHandler := &ItemsHandler{DB: db}
	storageHandler := &StorageHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)

	// Public: account creation and login.
	mux.HandleFunc("POST /api/auth/signup", authHandler.SignUp)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated session routes.
	mux.Handle("GET /api/auth/session", authMW(http.HandlerFunc(authHandler.Session)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Items: every user sees and edits only their own.
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PATCH /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("DELETE /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Delete)))

	// Blob storage: uploads are scoped to the caller's namespace, reads are public.
	mux.Handle("PUT /api/storage/{bucket}/{path...}", authMW(http.HandlerFunc(storageHandler.Upload)))
	mux.HandleFunc("GET /storage/{bucket}/{path...}", storageHandler.Get)

	return mux
}
