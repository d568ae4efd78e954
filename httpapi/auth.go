package httpapi

import (
	"net/http"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/csrf"
	"github.com/MrEthical07/goShield/middleware"
)

// RefreshCookie names the cookie the refresh token may travel in.
const RefreshCookie = "refreshToken"

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	All          bool   `json:"all"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, s.logger, err)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in goShield.RegisterInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := s.engine.Register(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setRefreshCookie(w, session)
	middleware.WriteJSON(w, http.StatusCreated, "Registration successful. Please verify your email.", session)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := s.engine.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setRefreshCookie(w, session)
	middleware.WriteJSON(w, http.StatusOK, "Login successful.", session)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	token := in.RefreshToken
	if token == "" {
		if c, err := r.Cookie(RefreshCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		s.fail(w, r, goShield.ErrRefreshTokenRequired)
		return
	}

	session, err := s.engine.Refresh(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setRefreshCookie(w, session)
	middleware.WriteJSON(w, http.StatusOK, "Token refreshed.", session)
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var in tokenRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.VerifyEmail(r.Context(), in.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "Email verified.", nil)
}

func (s *Server) resendVerification(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ResendVerification(r.Context(), in.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "Verification email sent.", nil)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ForgotPassword(r.Context(), in.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "If the email is registered, a reset link has been sent.", nil)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ResetPassword(r.Context(), in.Token, in.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "Password reset successful. Please log in again.", nil)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var in logoutRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.RefreshToken == "" {
		if c, err := r.Cookie(RefreshCookie); err == nil {
			in.RefreshToken = c.Value
		}
	}

	principal, _ := goShield.PrincipalFrom(r.Context())
	revoked, err := s.engine.Logout(r.Context(), principal, in.RefreshToken, in.All)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearRefreshCookie(w)
	w.Header().Del(csrf.HeaderName)
	middleware.WriteJSON(w, http.StatusOK, "Logged out.", map[string]int{"revoked": revoked})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	principal, _ := goShield.PrincipalFrom(r.Context())
	profile, err := s.engine.Me(r.Context(), principal)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "Profile loaded.", profile)
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, session *goShield.Session) {
	if !s.opts.RefreshCookie || session == nil || session.RefreshToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    session.RefreshToken,
		Path:     "/api/auth",
		Expires:  session.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   s.engine.Config().HTTP.Production,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	if !s.opts.RefreshCookie {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/api/auth",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.engine.Config().HTTP.Production,
		SameSite: http.SameSiteStrictMode,
	})
}
