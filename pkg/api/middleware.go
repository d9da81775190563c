package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the user is unknown so that lookups
// take the same time for known and unknown users.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dropwatch"), bcrypt.MinCost)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireBasicAuth checks HTTP basic credentials against the configured
// users' bcrypt hashes.
func (s *server) requireBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !s.checkCredentials(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dropwatch"`)
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkCredentials reports whether username/password match a configured user.
func (s *server) checkCredentials(username, password string) bool {
	hash := dummyHash
	found := false

	for _, u := range s.cfg.Auth.Basic.Users {
		if subtle.ConstantTimeCompare([]byte(u.Username), []byte(username)) == 1 {
			hash = []byte(u.PasswordHash)
			found = true

			break
		}
	}

	err := bcrypt.CompareHashAndPassword(hash, []byte(password))

	return found && err == nil
}
