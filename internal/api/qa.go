package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/borisletic/lti-qa-tool/internal/provenance"
	"github.com/borisletic/lti-qa-tool/internal/qa"
	"github.com/borisletic/lti-qa-tool/internal/retrieval"
)

// ToolName identifies this tool in launch events.
const ToolName = "lti-qa-tool"

const (
	defaultCourse = "default"
	defaultUser   = "anonymous"
)

type launchResponse struct {
	Session
	LaunchID string `json:"launch_id"`
}

// handleLaunch accepts an LTI 1.1 basic launch form, logs the launch in the
// provenance graph and opens a session for the Q&A endpoints.
func handleLaunch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := r.ParseForm(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid launch form: %v", err)
			return
		}

		sess := Session{
			User:        formValue(r, "unknown", "user_id"),
			UserName:    formValue(r, "Student", "lis_person_name_full"),
			Course:      formValue(r, defaultCourse, "custom_canvas_course_id", "context_id"),
			CourseTitle: formValue(r, "Unknown Course", "context_title"),
			Instructor:  hasInstructorRole(r.PostFormValue("roles")),
		}

		launchID, err := deps.Registry.Graph().LogLaunch(r.Context(), ToolName, sess.Course, sess.User)
		if err != nil {
			slog.Error("logging launch failed", "course", sess.Course, "user", sess.User, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to log launch: %v", err)
			return
		}
		deps.Metrics.IncLaunch()

		sess = deps.Sessions.Create(sess)
		secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
		cookie := &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		}
		// Launches arrive inside an LMS iframe, which needs a third-party cookie.
		if secure {
			cookie.SameSite = http.SameSiteNoneMode
		}
		http.SetCookie(w, cookie)

		slog.Info("tool launched", "course", sess.Course, "user", sess.User, "instructor", sess.Instructor)
		writeJSON(w, http.StatusOK, launchResponse{Session: sess, LaunchID: launchID})
	}
}

// formValue returns the first non-empty form field among keys, or def.
func formValue(r *http.Request, def string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.PostFormValue(k)); v != "" {
			return v
		}
	}
	return def
}

func hasInstructorRole(roles string) bool {
	for _, role := range strings.Split(roles, ",") {
		if strings.Contains(role, "Instructor") {
			return true
		}
	}
	return false
}

// identity resolves the course and user of a request: the launch session
// wins over explicit values, which win over the defaults.
func identity(r *http.Request, course, user string) (string, string) {
	if sess, ok := sessionFrom(r.Context()); ok {
		return sess.Course, sess.User
	}
	if course == "" {
		course = defaultCourse
	}
	if user == "" {
		user = defaultUser
	}
	return course, user
}

// adminCourse resolves the course an instructor route acts on: the explicit
// value, else the session course.
func adminCourse(r *http.Request, course string) string {
	if course != "" {
		return course
	}
	c, _ := identity(r, "", "")
	return c
}

type askRequest struct {
	Question string `json:"question"`
	Course   string `json:"course"`
	User     string `json:"user"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question must not be empty")
			return
		}
		course, user := identity(r, req.Course, req.User)

		e, err := deps.Registry.Get(r.Context(), course)
		if err != nil {
			slog.Error("course collection unavailable, answering without context", "course", course, "error", err)
			writeJSON(w, http.StatusOK, deps.Registry.Unavailable())
			return
		}
		res, err := e.Ask(r.Context(), req.Question, user)
		switch {
		case errors.Is(err, qa.ErrEmptyInput):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question must not be empty")
			return
		case err != nil && res.Answer == "":
			httpError(w, http.StatusInternalServerError, "api_error", "answering question: %v", err)
			return
		case err != nil:
			// The answer exists but could not be recorded; serve it without an id.
			slog.Error("answer not recorded", "course", course, "error", err)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type feedbackRequest struct {
	QuestionID string `json:"question_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.QuestionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question_id is required")
			return
		}

		id, err := deps.Registry.Graph().AddFeedback(r.Context(), req.QuestionID, req.Rating, req.Comment)
		switch {
		case errors.Is(err, provenance.ErrInvalidRating):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, provenance.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "question not found")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "recording feedback: %v", err)
			return
		}
		deps.Metrics.IncFeedback()
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "feedback_id": id})
	}
}

type similarJSON struct {
	QuestionID  string    `json:"question_id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`
}

func toSimilarJSON(in []provenance.Similar) []similarJSON {
	out := make([]similarJSON, len(in))
	for i, s := range in {
		out[i] = similarJSON{
			QuestionID:  s.QuestionID,
			Question:    s.Question,
			Answer:      s.Answer,
			Confidence:  s.Confidence,
			GeneratedAt: s.GeneratedAt,
		}
	}
	return out
}

func handleSimilar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		course, _ := identity(r, r.URL.Query().Get("course"), "")
		limit := parseIntParam(r, "limit", 5, 50)

		writeJSON(w, http.StatusOK, toSimilarJSON(deps.Registry.Graph().FindSimilar(q, course, limit)))
	}
}

type collectionJSON struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type statsResponse struct {
	Course     string                 `json:"course"`
	Collection collectionJSON         `json:"collection"`
	Questions  provenance.CourseStats `json:"questions"`
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		course, _ := identity(r, r.URL.Query().Get("course"), "")

		e, err := deps.Registry.Get(r.Context(), course)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "opening course %s: %v", course, err)
			return
		}
		n, err := e.Store().Count(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "counting fragments: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, statsResponse{
			Course:     course,
			Collection: collectionJSON{Name: retrieval.CollectionName(course), Count: n},
			Questions:  deps.Registry.Graph().Statistics(course),
		})
	}
}

func handleGraphStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Registry.Graph().Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"total_triples":     st.TotalTriples,
			"event_triples":     st.EventTriples,
			"classes":           st.Classes,
			"object_properties": st.ObjectProperties,
			"data_properties":   st.DataProperties,
			"nodes":             st.Nodes,
			"open_courses":      deps.Registry.Courses(),
		})
	}
}

type tripleJSON struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Kind      string `json:"kind"`
	Datatype  string `json:"datatype,omitempty"`
	Lang      string `json:"lang,omitempty"`
}

// handleGraphMatch answers a triple pattern query. Each of s, p and o
// narrows the match; at least one must be set.
func handleGraphMatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pat := provenance.Pattern{Subject: q.Get("s"), Predicate: q.Get("p"), Object: q.Get("o")}
		if pat == (provenance.Pattern{}) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of s, p or o is required")
			return
		}
		limit := parseIntParam(r, "limit", 100, 1000)

		matches := deps.Registry.Graph().Match(pat)
		if len(matches) > limit {
			matches = matches[:limit]
		}
		out := make([]tripleJSON, 0, len(matches))
		for _, t := range matches {
			kind := "literal"
			if t.Object.Kind == provenance.KindIRI {
				kind = "iri"
			}
			out = append(out, tripleJSON{
				Subject:   t.Subject,
				Predicate: t.Predicate,
				Object:    t.Object.Value,
				Kind:      kind,
				Datatype:  t.Object.Datatype,
				Lang:      t.Object.Lang,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGraphExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g := deps.Registry.Graph()
		var err error
		switch r.URL.Query().Get("format") {
		case "", "turtle":
			w.Header().Set("Content-Type", "text/turtle; charset=utf-8")
			err = g.WriteTurtle(w)
		case "ntriples":
			w.Header().Set("Content-Type", "application/n-triples")
			err = g.WriteNTriples(w)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "format must be turtle or ntriples")
			return
		}
		if err != nil {
			slog.Error("graph export failed", "error", err)
		}
	}
}
