package http

import (
	"bytes"
	"errors"
	"net/http"

	"entrate/internal/core"
	"entrate/internal/income"
	applog "entrate/internal/log"
	"entrate/internal/middleware/auth"
	"entrate/internal/store"
)

const (
	msgDuplicate       = "Income already recorded"
	msgNotConfirmed    = "Income added locally but could not be saved. It will not appear in your total."
	msgRolledBack      = "Could not save the income. Please try again."
	msgUnauthenticated = "Sign in to record incomes"
)

type categoryOption struct {
	Value    string
	Label    string
	Selected bool
}

type incomeRow struct {
	Date        string
	Description string
	Category    string
	Amount      string
}

// pageData feeds the page and every partial.
type pageData struct {
	Form           core.IncomeForm
	Errors         core.FieldErrors
	Categories     []categoryOption
	Incomes        []incomeRow
	Total          string
	TotalLoaded    bool
	LocalTotal     string
	SuccessMessage string
	Authenticated  bool
}

// fieldErrorData feeds the field_error partial.
type fieldErrorData struct {
	Field   string
	Message string
}

func newPageData(v income.View, authenticated bool) pageData {
	d := pageData{
		Form:           v.Form,
		Errors:         v.FormErrors,
		Total:          v.TotalIncome.String(),
		TotalLoaded:    v.TotalLoaded,
		LocalTotal:     v.LocalTotal().String(),
		SuccessMessage: v.SuccessMessage,
		Authenticated:  authenticated,
	}
	for _, c := range core.Categories() {
		d.Categories = append(d.Categories, categoryOption{
			Value:    string(c),
			Label:    c.Label(),
			Selected: string(c) == v.Form.Category,
		})
	}
	for _, e := range v.Incomes {
		d.Incomes = append(d.Incomes, incomeRow{
			Date:        e.Date.ISODate(),
			Description: e.Description,
			Category:    e.Category.Label(),
			Amount:      e.Amount.String(),
		})
	}
	return d
}

// render executes a template into a buffer so a failed render never sends
// half a page.
func (s *Server) render(r *http.Request, name string, data any) (string, bool) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		return "", false
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err, "template", name)
		return "", false
	}
	return buf.String(), true
}

func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, name string, data any) {
	html, ok := s.render(r, name, data)
	if !ok {
		InternalServerError("Rendering failed").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

// ensureTotal loads the remote total once per session view.
func (s *Server) ensureTotal(r *http.Request, ctrl *income.Controller) {
	uid := auth.UserID(r.Context())
	if uid == nil || ctrl.Snapshot().TotalLoaded {
		return
	}
	if err := ctrl.Refresh(r.Context(), *uid); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to load income total",
			applog.FieldUserID, *uid, applog.FieldError, err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)
	s.ensureTotal(r, ctrl)
	s.renderPartial(w, r, "index.html", newPageData(ctrl.Snapshot(), auth.UserID(r.Context()) != nil))
}

func (s *Server) handleIncomeList(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)
	s.renderPartial(w, r, "income_list", newPageData(ctrl.Snapshot(), auth.UserID(r.Context()) != nil))
}

func (s *Server) handleIncomeTotal(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)
	s.ensureTotal(r, ctrl)
	s.renderPartial(w, r, "income_total", newPageData(ctrl.Snapshot(), auth.UserID(r.Context()) != nil))
}

func (s *Server) handleSuccessMessage(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)
	s.renderPartial(w, r, "success_message", newPageData(ctrl.Snapshot(), auth.UserID(r.Context()) != nil))
}

// handleValidateField checks the field named by the "field" query parameter
// and renders its error slot.
func (s *Server) handleValidateField(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	field := r.URL.Query().Get("field")
	switch field {
	case core.FieldDescription, core.FieldAmount, core.FieldCategory, core.FieldDate:
	default:
		BadRequestError("Unknown field").Write(w)
		return
	}
	msg := p.IncomeForm().ValidateField(field)
	if wantsJSON(r, p) {
		NewHTMXResponse().BodyJSON(map[string]string{"field": field, "error": msg}).Write(w)
		return
	}
	s.renderPartial(w, r, "field_error", fieldErrorData{Field: field, Message: msg})
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		logger.WarnContext(ctx, "Parse request error", applog.FieldError, err, applog.FieldPath, r.URL.Path)
		BadRequestError("Invalid request format").Write(w)
		return
	}
	form := p.IncomeForm()
	uid := auth.UserID(ctx)
	ctrl := s.controller(r)

	res := ctrl.Submit(ctx, uid, form)
	rolledBack := s.opts.RollbackOnRemoteError && res.Retractable()
	if rolledBack {
		ctrl.Rollback(res.Entry)
		ctrl.RestoreForm(form)
	}

	if wantsJSON(r, p) {
		s.writeJSONResult(w, res)
		return
	}

	resp := NewHTMXResponse()
	switch res.Outcome {
	case income.OutcomeValidationError:
		resp.Status(http.StatusUnprocessableEntity)
	case income.OutcomeUnauthenticated:
		UnauthorizedError(msgUnauthenticated).TriggerErrorNotification(msgUnauthenticated).Write(w)
		return
	case income.OutcomeRemoteError:
		if rolledBack {
			resp.TriggerIncomeRolledBack().TriggerErrorNotification(msgRolledBack)
		} else {
			resp.Trigger(EventIncomeCreated, map[string]any{"confirmed": false}).
				TriggerWarningNotification(msgNotConfirmed)
		}
	case income.OutcomeSuccess:
		resp.TriggerIncomeCreated(res.TotalIncome.Cents, res.Duplicate)
		if res.Duplicate {
			resp.TriggerNotification(NotificationInfo, msgDuplicate, 3000)
		} else {
			resp.TriggerSuccessNotification(income.SuccessMessage, int(s.opts.Controller.SuccessMessageTTL.Milliseconds()))
		}
	}

	html, ok := s.render(r, "income_form", newPageData(ctrl.Snapshot(), uid != nil))
	if !ok {
		InternalServerError("Rendering failed").Write(w)
		return
	}
	resp.BodyHTML(html).Write(w)
}

// resultJSON is the JSON shape of a submission result.
type resultJSON struct {
	Outcome     string                `json:"outcome"`
	Entry       *store.IncomeDocument `json:"entry,omitempty"`
	Errors      map[string]string     `json:"errors,omitempty"`
	TotalIncome *float64              `json:"totalIncome,omitempty"`
	Duplicate   bool                  `json:"duplicate,omitempty"`
	Error       string                `json:"error,omitempty"`
}

func (s *Server) writeJSONResult(w http.ResponseWriter, res income.Result) {
	out := resultJSON{Outcome: string(res.Outcome), Errors: res.Errors, Duplicate: res.Duplicate}
	status := http.StatusOK
	switch res.Outcome {
	case income.OutcomeValidationError:
		status = http.StatusUnprocessableEntity
	case income.OutcomeUnauthenticated:
		status = http.StatusUnauthorized
		out.Error = res.Err.Error()
	case income.OutcomeRemoteError:
		status = http.StatusBadGateway
		out.Error = "remote write failed"
	case income.OutcomeSuccess:
		total := res.TotalIncome.Float()
		out.TotalIncome = &total
	}
	if res.Outcome != income.OutcomeValidationError {
		doc := store.NewIncomeDocument(res.Entry)
		out.Entry = &doc
	}
	NewHTMXResponse().Status(status).BodyJSON(out).Write(w)
}

// handleRecord returns the caller's stored record.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := auth.UserID(ctx)
	if uid == nil {
		NewHTMXResponse().Status(http.StatusUnauthorized).
			BodyJSON(map[string]string{"error": core.ErrUnauthenticated.Error()}).Write(w)
		return
	}
	rec, err := s.store.Get(ctx, *uid)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = core.UserIncomeRecord{UserID: *uid}
	case err != nil:
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to read income record",
			applog.FieldUserID, *uid, applog.FieldError, err, applog.FieldOperation, applog.OpRead)
		NewHTMXResponse().Status(http.StatusBadGateway).
			BodyJSON(map[string]string{"error": "failed to read record"}).Write(w)
		return
	}
	NewHTMXResponse().BodyJSON(store.NewRecordDocument(rec)).Write(w)
}
