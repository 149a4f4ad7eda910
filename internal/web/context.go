package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/gridedit/internal/sessions"
)

type ctxKey int

const sessionKey ctxKey = iota

// withSession resolves the {id} URL parameter to a live session.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, ok := s.sessions.Get(id)
		if !ok {
			s.respondError(w, r, errSessionNotFound)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session stored by withSession.
func sessionFrom(ctx context.Context) *sessions.Session {
	sess, _ := ctx.Value(sessionKey).(*sessions.Session)
	return sess
}

// rowIndex parses the {index} URL parameter.
func rowIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, badRequest("row index must be an integer")
	}
	return i, nil
}
