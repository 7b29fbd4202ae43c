package lib

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/uvensys/abacus"
	"github.com/uvensys/abacus/internal"
	"github.com/uvensys/abacus/lib/challenge"
	"github.com/uvensys/abacus/lib/localization"
	"github.com/uvensys/abacus/lib/quota"
)

// maxVerifyBody caps the size of a verify request body.
const maxVerifyBody = 4 << 10

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	register := func(method, pattern string, h http.HandlerFunc) {
		mux.Handle(method+" "+abacus.APIPrefix+pattern, internal.GzipMiddleware(gzip.BestSpeed, s.requireUser(h)))
	}

	register(http.MethodGet, "challenge", s.handleIssue)
	register(http.MethodPost, "challenge/verify", s.handleVerify)
	register(http.MethodGet, "status", s.handleStatus)

	return mux
}

type failureBody struct {
	Error      string `json:"error"`
	CooldownMs int64  `json:"cooldownMs,omitempty"`
}

type verifyFailureBody struct {
	Success bool `json:"success"`
	failureBody
}

// verifyRequest is the body of POST /api/challenge/verify. Answer is nil when
// the field is absent or null.
type verifyRequest struct {
	ChallengeID string       `json:"challengeId"`
	Answer      *answerField `json:"answer"`
}

// answerField accepts the answer as a JSON string or a bare JSON number.
// Numbers are kept as written, so 12.0 stays "12.0" and does not match 12.
type answerField string

func (a *answerField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = answerField(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("answer must be a string or a number: %w", err)
	}

	*a = answerField(n.String())
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func userID(r *http.Request) string {
	id, _ := UserIDFromContext(r.Context())
	return id
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	result, err := s.IssueChallenge(r.Context(), userID(r))
	if err != nil {
		s.respondWithError(w, r, err, false)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVerifyBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondWithError(w, r, challenge.NewError("verify", "invalid_format", fmt.Errorf("%w: %w", challenge.ErrInvalidFormat, err)).WithStatus(http.StatusBadRequest), true)
		return
	}

	if req.Answer == nil {
		s.respondWithError(w, r, missingField("answer"), true)
		return
	}

	result, err := s.VerifyChallenge(r.Context(), userID(r), req.ChallengeID, string(*req.Answer))
	if err != nil {
		s.respondWithError(w, r, err, true)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.GetStatus(r.Context(), userID(r))
	if err != nil {
		s.respondWithError(w, r, err, false)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// respondWithError writes err as a localized JSON failure. Errors that are
// not a *challenge.Error are logged and reported as internal errors.
// verify adds the success field verify responses carry.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error, verify bool) {
	lg := internal.GetRequestLogger(r)
	localizer := localization.GetLocalizer(r)

	status := http.StatusInternalServerError
	body := failureBody{Error: localizer.T("internal_server_error")}

	var cerr *challenge.Error
	switch {
	case errors.As(err, &cerr):
		lg.Debug("request refused", "verb", cerr.Verb, "err", err)
		status = cerr.StatusCode

		if cerr.Cooldown > 0 {
			seconds := (quota.Milliseconds(cerr.Cooldown) + 999) / 1000
			body.Error = localizer.TData(cerr.PublicReason, map[string]any{"Seconds": seconds})
			body.CooldownMs = quota.Milliseconds(cerr.Cooldown)
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		} else {
			body.Error = localizer.T(cerr.PublicReason)
		}
	default:
		lg.Error("request failed", "err", err)
	}

	if verify {
		writeJSON(w, status, verifyFailureBody{failureBody: body})
		return
	}

	writeJSON(w, status, body)
}

func (s *Server) respondUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	internal.GetRequestLogger(r).Debug("no user identity", "err", err)

	if len(s.opts.JWTSecret) != 0 {
		w.Header().Set("WWW-Authenticate", `Bearer realm="abacus"`)
	}

	body := failureBody{Error: localization.GetLocalizer(r).T("authorization_required")}
	if strings.HasSuffix(r.URL.Path, "/verify") {
		writeJSON(w, http.StatusUnauthorized, verifyFailureBody{failureBody: body})
		return
	}

	writeJSON(w, http.StatusUnauthorized, body)
}
