// Package videoapi exposes the dashboard facade as a small JSON API,
// the surface other team tooling integrates against.
package videoapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"npid-bridge/lib/scrapers/npid"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/videoapi")

// Facade is the slice of the dashboard client the handlers need.
type Facade interface {
	SubmitVideo(ctx context.Context, req npid.SubmitVideoRequest) (npid.SubmitResult, error)
	UpdateStage(ctx context.Context, videoMsgID string, stage npid.Stage) error
	UpdateStatus(ctx context.Context, videoMsgID string, status npid.Status) error
	UpdateDueDate(ctx context.Context, videoMsgID, dueDate string) error
	FetchSeasons(ctx context.Context, req npid.FetchSeasonsRequest) ([]npid.Season, error)
	SearchVideoProgress(ctx context.Context, filter npid.ProgressFilter) ([]npid.ProgressEntry, error)
	AssignThread(ctx context.Context, req npid.AssignThreadRequest) error
	FetchAssignmentModal(ctx context.Context, messageID, itemCode string) (npid.AssignmentModal, error)
	AssignmentDefaults(ctx context.Context, contactID string) (npid.AssignmentDefaults, error)
	SearchContacts(ctx context.Context, query, searchFor string) ([]npid.Contact, error)
	FetchEmailTemplates(ctx context.Context, contactID string) ([]npid.EmailTemplate, error)
	SendTemplatedEmail(ctx context.Context, req npid.SendEmailRequest) error
	State() npid.State
	LastRefreshed() time.Time
}

type Service struct {
	facade  Facade
	token   string
	alerter *Alerter
}

type Options struct {
	// bearer token guarding every route except healthz
	AccessToken string
	// optional, nil disables operator alerts
	Alerter *Alerter
}

func NewService(facade Facade, opts Options) *Service {
	return &Service{
		facade:  facade,
		token:   opts.AccessToken,
		alerter: opts.Alerter,
	}
}

func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/video/submit", s.handleSubmitVideo)
		r.Post("/video/stage", s.handleUpdateStage)
		r.Post("/video/status", s.handleUpdateStatus)
		r.Post("/video/duedate", s.handleUpdateDueDate)
		r.Post("/video/seasons", s.handleFetchSeasons)
		r.Get("/video/progress", s.handleSearchProgress)

		r.Get("/assignments/modal", s.handleAssignmentModal)
		r.Get("/assignments/defaults", s.handleAssignmentDefaults)
		r.Post("/assignments/assign", s.handleAssignThread)

		r.Get("/contacts/search", s.handleSearchContacts)
		r.Get("/email/templates", s.handleEmailTemplates)
		r.Post("/email/send", s.handleSendEmail)
	})

	return r
}

func (s *Service) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, apiError{Kind: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type apiError struct {
	Kind    string `json:"kind"`
	Code    int    `json:"code,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, apiErr apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiErr})
}

// writeFailure maps facade errors onto http statuses and the error
// envelope. a dead session additionally wakes the operator alerter.
func (s *Service) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *npid.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, apiError{Kind: "validation", Excerpt: verr.Error()})
		return
	}

	var uerr *npid.UpstreamError
	if errors.As(err, &uerr) {
		writeError(w, http.StatusBadGateway, apiError{
			Kind:    "upstream",
			Code:    uerr.Code,
			Excerpt: uerr.Excerpt,
		})
		return
	}

	if errors.Is(err, npid.ErrAuthentication) || errors.Is(err, npid.ErrClosed) {
		slog.ErrorContext(ctx, "dashboard session is dead", "err", err)
		if s.alerter != nil {
			s.alerter.AuthFailure(ctx, err)
		}
		writeError(w, http.StatusServiceUnavailable, apiError{Kind: "authentication", Excerpt: err.Error()})
		return
	}

	slog.ErrorContext(ctx, "request failed", "err", err)
	writeError(w, http.StatusInternalServerError, apiError{Kind: "internal"})
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var body T
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Kind: "validation", Excerpt: "malformed json body"})
		return body, false
	}
	return body, true
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	type health struct {
		State         string    `json:"state"`
		LastRefreshed time.Time `json:"last_refreshed"`
	}

	state := "unauthenticated"
	switch s.facade.State() {
	case npid.StateAuthenticated:
		state = "authenticated"
	case npid.StateAuthenticating:
		state = "authenticating"
	case npid.StateRefreshingToken:
		state = "refreshing_token"
	case npid.StateClosed:
		state = "closed"
	}
	writeData(w, health{State: state, LastRefreshed: s.facade.LastRefreshed()})
}

type submitVideoBody struct {
	AthleteID     string `json:"athlete_id"`
	AthleteMainID string `json:"athlete_main_id"`
	Sport         string `json:"sport"`
	Season        string `json:"season"`
	Source        string `json:"source"`
	VideoType     string `json:"video_type"`
	VideoUrl      string `json:"video_url"`
	AutoApprove   bool   `json:"auto_approve"`
}

func (s *Service) handleSubmitVideo(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleSubmitVideo")
	defer span.End()

	body, ok := decodeBody[submitVideoBody](w, r)
	if !ok {
		return
	}
	result, err := s.facade.SubmitVideo(ctx, npid.SubmitVideoRequest{
		AthleteID:     body.AthleteID,
		AthleteMainID: body.AthleteMainID,
		Sport:         body.Sport,
		Season:        body.Season,
		Source:        npid.VideoSource(body.Source),
		VideoType:     npid.VideoType(body.VideoType),
		VideoUrl:      body.VideoUrl,
		AutoApprove:   body.AutoApprove,
	})
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, result)
}

type stageBody struct {
	VideoMsgID string `json:"video_msg_id"`
	Stage      string `json:"stage"`
}

func (s *Service) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleUpdateStage")
	defer span.End()

	body, ok := decodeBody[stageBody](w, r)
	if !ok {
		return
	}
	err := s.facade.UpdateStage(ctx, body.VideoMsgID, npid.Stage(body.Stage))
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, nil)
}

type statusBody struct {
	VideoMsgID string `json:"video_msg_id"`
	Status     string `json:"status"`
}

func (s *Service) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleUpdateStatus")
	defer span.End()

	body, ok := decodeBody[statusBody](w, r)
	if !ok {
		return
	}
	err := s.facade.UpdateStatus(ctx, body.VideoMsgID, npid.Status(body.Status))
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, nil)
}

type dueDateBody struct {
	VideoMsgID string `json:"video_msg_id"`
	DueDate    string `json:"due_date"`
}

func (s *Service) handleUpdateDueDate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleUpdateDueDate")
	defer span.End()

	body, ok := decodeBody[dueDateBody](w, r)
	if !ok {
		return
	}
	err := s.facade.UpdateDueDate(ctx, body.VideoMsgID, body.DueDate)
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, nil)
}

type seasonsBody struct {
	AthleteID     string `json:"athlete_id"`
	AthleteMainID string `json:"athlete_main_id"`
	Sport         string `json:"sport"`
	VideoType     string `json:"video_type"`
}

func (s *Service) handleFetchSeasons(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleFetchSeasons")
	defer span.End()

	body, ok := decodeBody[seasonsBody](w, r)
	if !ok {
		return
	}
	seasons, err := s.facade.FetchSeasons(ctx, npid.FetchSeasonsRequest{
		AthleteID:     body.AthleteID,
		AthleteMainID: body.AthleteMainID,
		Sport:         body.Sport,
		VideoType:     npid.VideoType(body.VideoType),
	})
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, seasons)
}

func (s *Service) handleSearchProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleSearchProgress")
	defer span.End()

	q := r.URL.Query()
	entries, err := s.facade.SearchVideoProgress(ctx, npid.ProgressFilter{
		FirstName: q.Get("first_name"),
		LastName:  q.Get("last_name"),
		Email:     q.Get("email"),
		Sport:     q.Get("sport"),
		State:     q.Get("state"),
		GradYear:  q.Get("grad_year"),
		Editor:    q.Get("editor"),
		Stage:     q.Get("stage"),
		Status:    q.Get("status"),
	})
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, entries)
}

func (s *Service) handleAssignmentModal(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleAssignmentModal")
	defer span.End()

	q := r.URL.Query()
	modal, err := s.facade.FetchAssignmentModal(ctx, q.Get("message_id"), q.Get("item_code"))
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, modal)
}

func (s *Service) handleAssignmentDefaults(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleAssignmentDefaults")
	defer span.End()

	defaults, err := s.facade.AssignmentDefaults(ctx, r.URL.Query().Get("contact_id"))
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, defaults)
}

type assignBody struct {
	MessageID     string `json:"message_id"`
	OwnerID       string `json:"owner_id"`
	ContactID     string `json:"contact_id"`
	AthleteMainID string `json:"athlete_main_id"`
	ContactFor    string `json:"contact_for"`
	Contact       string `json:"contact"`
	Stage         string `json:"stage"`
	Status        string `json:"status"`
}

func (s *Service) handleAssignThread(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleAssignThread")
	defer span.End()

	body, ok := decodeBody[assignBody](w, r)
	if !ok {
		return
	}
	err := s.facade.AssignThread(ctx, npid.AssignThreadRequest{
		MessageID:     body.MessageID,
		OwnerID:       body.OwnerID,
		ContactID:     body.ContactID,
		AthleteMainID: body.AthleteMainID,
		ContactFor:    body.ContactFor,
		Contact:       body.Contact,
		Stage:         npid.Stage(body.Stage),
		Status:        npid.Status(body.Status),
	})
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, nil)
}

func (s *Service) handleSearchContacts(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleSearchContacts")
	defer span.End()

	q := r.URL.Query()
	contacts, err := s.facade.SearchContacts(ctx, q.Get("q"), q.Get("for"))
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, contacts)
}

func (s *Service) handleEmailTemplates(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleEmailTemplates")
	defer span.End()

	templates, err := s.facade.FetchEmailTemplates(ctx, r.URL.Query().Get("contact_id"))
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, templates)
}

type sendEmailBody struct {
	AthleteID  string `json:"athlete_id"`
	TemplateID string `json:"template_id"`
	From       string `json:"from"`
	FromEmail  string `json:"from_email"`
	Subject    string `json:"subject"`
	Message    string `json:"message"`
}

func (s *Service) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleSendEmail")
	defer span.End()

	body, ok := decodeBody[sendEmailBody](w, r)
	if !ok {
		return
	}
	err := s.facade.SendTemplatedEmail(ctx, npid.SendEmailRequest{
		AthleteID:  body.AthleteID,
		TemplateID: body.TemplateID,
		From:       body.From,
		FromEmail:  body.FromEmail,
		Subject:    body.Subject,
		Message:    body.Message,
	})
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeData(w, nil)
}
