package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/habitnest/habitnest/internal/app/habit"
	"github.com/habitnest/habitnest/internal/domain"
)

// logView is a habit log with its derived progress.
type logView struct {
	domain.HabitLog
	Progress domain.HabitProgress `json:"progress"`
}

func logViews(logs []domain.HabitLog) []logView {
	out := make([]logView, len(logs))
	for i, l := range logs {
		out[i] = logView{HabitLog: l, Progress: domain.LogProgress(l)}
	}
	return out
}

// ─── Goals ──────────────────────────────────────────────────────────────────

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.Habits.Goal(r.Context(), userID(r), habitOf(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handlePutGoal(w http.ResponseWriter, r *http.Request) {
	var g domain.HabitGoal
	if err := decodeJSON(w, r, &g); err != nil {
		writeDomainError(w, err)
		return
	}
	g.UserID, g.Habit = userID(r), habitOf(r)

	saved, logs, err := s.svc.Habits.SetGoal(r.Context(), g, s.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"goal": saved,
		"logs": logViews(logs),
	})
}

// ─── Logs ───────────────────────────────────────────────────────────────────

func (s *Server) handleTodayLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.svc.Habits.TodayLogs(r.Context(), userID(r), habitOf(r), s.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logViews(logs)})
}

func (s *Server) handleWeekLogs(w http.ResponseWriter, r *http.Request) {
	today := s.today()
	logs, err := s.svc.Habits.WeekLogs(r.Context(), userID(r), habitOf(r), today)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from": today.WeekStart(),
		"to":   today,
		"logs": logViews(logs),
	})
}

func (s *Server) handleUpdateLog(w http.ResponseWriter, r *http.Request) {
	var u habit.Update
	// hydrate and sleep updates carry no body
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &u); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	l, err := s.svc.Habits.UpdateLog(r.Context(), userID(r), habitOf(r), chi.URLParam(r, "id"), u, s.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logView{HabitLog: l, Progress: domain.LogProgress(l)})
}
