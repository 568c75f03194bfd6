package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/usecase"
	"github.com/secmon-lab/syllabus/pkg/utils/errutil"
)

// rootMessage identifies the API on GET /.
const rootMessage = "Course Materials RAG System API"

type queryRequest struct {
	Query     *string `json:"query"`
	SessionID string  `json:"session_id,omitempty"`
}

type sourceResponse struct {
	Title string  `json:"title"`
	Link  *string `json:"link"`
}

type queryResponse struct {
	Answer    string           `json:"answer"`
	Sources   []sourceResponse `json:"sources"`
	SessionID string           `json:"session_id"`
}

type coursesResponse struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError, "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

func queryHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "malformed request body"), http.StatusUnprocessableEntity, "malformed request body")
			return
		}
		if req.Query == nil {
			errutil.HandleHTTP(r.Context(), w, goerr.New("query is required"), http.StatusUnprocessableEntity, "query is required")
			return
		}

		answer, err := uc.AnswerQuery(r.Context(), *req.Query, req.SessionID)
		if err != nil {
			if errors.Is(err, usecase.ErrEmptyQuery) {
				errutil.HandleHTTP(r.Context(), w, err, http.StatusUnprocessableEntity, "query is empty")
				return
			}
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError, "failed to process query")
			return
		}

		resp := queryResponse{
			Answer:    answer.Text,
			Sources:   make([]sourceResponse, 0, len(answer.Sources)),
			SessionID: answer.SessionID,
		}
		for _, src := range answer.Sources {
			s := sourceResponse{Title: src.Title}
			if src.Link != "" {
				link := src.Link
				s.Link = &link
			}
			resp.Sources = append(resp.Sources, s)
		}

		writeJSON(w, r, http.StatusOK, resp)
	}
}

func coursesHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := uc.GetStats(r.Context())
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError, "failed to get course stats")
			return
		}

		titles := stats.CourseTitles
		if titles == nil {
			titles = []string{}
		}
		writeJSON(w, r, http.StatusOK, coursesResponse{
			TotalCourses: stats.TotalCourses,
			CourseTitles: titles,
		})
	}
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"message": rootMessage})
}
