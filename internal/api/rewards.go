package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/habitnest/habitnest/internal/domain"
)

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Credit.Summary(r.Context(), userID(r), s.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeDomainError(w, domain.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}
	grants, err := s.svc.Credit.History(r.Context(), userID(r), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

// ─── Check-in ───────────────────────────────────────────────────────────────

func (s *Server) handleCheckinCalendar(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Checkins.Calendar(r.Context(), userID(r), s.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Checkins.CheckIn(r.Context(), userID(r), s.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Quests ─────────────────────────────────────────────────────────────────

func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Quests.List(r.Context(), userID(r), s.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quests": views})
}

func (s *Server) handleClaimQuest(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	view, ledger, err := s.svc.Quests.Claim(r.Context(), userID(r), chi.URLParam(r, "id"), domain.Today(now, s.loc), now.UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quest":  view,
		"ledger": ledger,
	})
}
