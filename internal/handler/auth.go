package handler

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/skillforge/internal/i18n"
)

const adminPasswordHeader = "X-Admin-Password"

// HashPassword returns the bcrypt hash used to check the admin password.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// requireAdmin rejects requests without the admin password header when an
// admin password is configured.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.adminHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		password := r.Header.Get(adminPasswordHeader)
		if password == "" || bcrypt.CompareHashAndPassword(h.adminHash, []byte(password)) != nil {
			slog.WarnContext(r.Context(), "admin request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": appI18n.T(r.Context(), "ErrUnauthorized")})
			return
		}
		next.ServeHTTP(w, r)
	})
}
