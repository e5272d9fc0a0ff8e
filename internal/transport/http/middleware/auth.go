package httpmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/jovemegidio/concord-sync/pkg/errs"
)

// InternalAuth — авторизация сервис-сервис для внутреннего publish:
// статический Bearer-токен из конфига. Пользовательские токены сюда
// не ходят, им нечего публиковать напрямую.
func InternalAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
				w.WriteHeader(errs.ToHTTP(errs.ErrUnauthorized))
				_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
				return
			}
			got := strings.TrimSpace(auth[7:])
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.WriteHeader(errs.ToHTTP(errs.ErrUnauthorized))
				_, _ = w.Write([]byte(`{"error":"invalid token"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
