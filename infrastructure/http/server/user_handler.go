package server

import (
	"chat-core/auth"
	"chat-core/domain"
	"chat-core/services"
	"net/http"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := decode(w, r, &body); err != nil {
		respondError(w, s.log, err)
		return
	}
	session, err := s.auth.Register(r.Context(), domain.RegisterCommand{
		Username: body.Username,
		Email:    body.Email,
		FullName: body.FullName,
		Password: body.Password,
	})
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	s.setSessionCookie(w, session)
	respond(w, s.log, http.StatusCreated, session, "User registered successfully")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decode(w, r, &body); err != nil {
		respondError(w, s.log, err)
		return
	}
	session, err := s.auth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	s.setSessionCookie(w, session)
	respond(w, s.log, http.StatusOK, session, "User logged in successfully")
}

// logout only drops the cookie: tokens are stateless and expire on their own.
func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respond(w, s.log, http.StatusOK, struct{}{}, "User logged out")
}

func (s *Server) userInfo(w http.ResponseWriter, r *http.Request) {
	profile, err := s.users.Profile(r.Context(), actor(r))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	respond(w, s.log, http.StatusOK, profile, "User fetched successfully")
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.users.SearchAvailableUsers(r.Context(), actor(r), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, s.log, err)
		return
	}
	if profiles == nil {
		profiles = []domain.Profile{}
	}
	respond(w, s.log, http.StatusOK, profiles, "Users fetched successfully")
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session services.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
