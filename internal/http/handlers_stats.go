package http

import "net/http"

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDayQuery(r.URL.Query(), s.deps.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := s.deps.Stats.Daily(r.Context(), ownerID(r), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	q, err := ParseMonthQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := s.deps.Stats.Monthly(r.Context(), ownerID(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	q, err := ParseMonthQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	breakdown, err := s.deps.Stats.CategoryBreakdown(r.Context(), ownerID(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Insights.Insights(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
