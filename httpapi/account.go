package httpapi

import (
	"net/http"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/middleware"
	"github.com/go-chi/chi/v5"
)

type memberResponse struct {
	User    *goShield.User      `json:"user"`
	Account *membership.Account `json:"account"`
}

type financialSummary struct {
	AccountID   string            `json:"accountId"`
	AccountName string            `json:"accountName"`
	Plan        membership.Plan   `json:"plan"`
	Status      membership.Status `json:"status"`
	Members     int               `json:"members"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFrom(r.Context())
	if !ok {
		s.fail(w, r, goShield.ErrAccountRequired)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "Account loaded.", acct)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var in goShield.MemberInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	principal, _ := goShield.PrincipalFrom(r.Context())
	user, acct, err := s.engine.AddMember(r.Context(), principal, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, "Member added.", memberResponse{User: user, Account: acct})
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	principal, _ := goShield.PrincipalFrom(r.Context())
	acct, err := s.engine.RemoveMember(r.Context(), principal, chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "Member removed.", acct)
}

func (s *Server) financialSummary(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFrom(r.Context())
	if !ok {
		s.fail(w, r, goShield.ErrAccountRequired)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "Financial summary.", financialSummary{
		AccountID:   acct.ID,
		AccountName: acct.Name,
		Plan:        acct.Plan,
		Status:      acct.Status,
		Members:     len(acct.Members),
		GeneratedAt: time.Now().UTC(),
	})
}
