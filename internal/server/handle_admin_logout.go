package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/riftbound/internal/store"
)

// handleAdminLogout always clears the cookie, even when the session is
// already gone from the store.
func handleAdminLogout(logger *slog.Logger, admins store.AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := adminFromCookie(r, admins); ok {
			if err := admins.DeleteAdminSession(r.Context(), sess.ID); err != nil {
				logger.Warn("deleting admin session", "admin_id", sess.AdminID, "error", err)
			} else {
				logger.Info("admin logged out", "admin_id", sess.AdminID)
			}
		}

		setAdminCookie(w, "", -1)
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func setAdminCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
