package server

import (
	"context"
	"net/http"
	"time"

	"github.com/playperu/riftbound/internal/store"
)

type ctxKey int

const ctxKeyAdmin ctxKey = iota

const adminCookieName = "admin_session"

func adminAuthMiddleware(admins store.AdminStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := adminFromCookie(r, admins)
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyAdmin, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminFromCookie(r *http.Request, admins store.AdminStore) (store.AdminSession, bool) {
	cookie, err := r.Cookie(adminCookieName)
	if err != nil || cookie.Value == "" {
		return store.AdminSession{}, false
	}
	sess, err := admins.AdminFromSession(r.Context(), cookie.Value, time.Now())
	if err != nil {
		return store.AdminSession{}, false
	}
	return sess, true
}

func adminFrom(r *http.Request) store.AdminSession {
	return r.Context().Value(ctxKeyAdmin).(store.AdminSession)
}
