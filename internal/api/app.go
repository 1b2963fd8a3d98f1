// Package api exposes the HTTP surface: report submission, adjudication,
// read projections, the dismissal overlay and the marketplace catalog.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sitewarden/sitewarden/internal/auth"
	"github.com/sitewarden/sitewarden/internal/chain"
	"github.com/sitewarden/sitewarden/internal/classifier"
	"github.com/sitewarden/sitewarden/internal/dismissed"
	"github.com/sitewarden/sitewarden/internal/evidence"
	"github.com/sitewarden/sitewarden/internal/market"
	"github.com/sitewarden/sitewarden/internal/metrics"
	"github.com/sitewarden/sitewarden/internal/report"
	"github.com/sitewarden/sitewarden/pkg/types"
)

const maxBodySize = 16 << 10

type App struct {
	reports   *report.Service
	dismissed *dismissed.Store
	market    *market.Store
	verifier  *auth.Verifier
	metrics   *metrics.Collector
	logger    *slog.Logger

	healthPath    string
	readinessPath string
}

func NewApp(reports *report.Service, dismissedStore *dismissed.Store, marketStore *market.Store, verifier *auth.Verifier, collector *metrics.Collector, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &App{
		reports:       reports,
		dismissed:     dismissedStore,
		market:        marketStore,
		verifier:      verifier,
		metrics:       collector,
		logger:        logger,
		healthPath:    "/healthz",
		readinessPath: "/readyz",
	}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Get(a.healthPath, func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })
	r.Get(a.readinessPath, func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ready\n") })
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", a.scanURL)

		r.Post("/reports", a.reportSite)
		r.Post("/reports/user", a.reportByUser)
		r.Get("/reports", a.listReports)
		r.Get("/reports/verified", a.listVerified)
		r.Get("/reports/pending", a.listPending)
		r.Post("/reports/{id}/verify", a.verifyReport)

		r.Get("/dismissed", a.listDismissed)
		r.Post("/dismissed", a.dismissReport)

		r.Get("/marketplaces", a.listMarketplaces)
		r.Post("/marketplaces", a.createMarketplace)
		r.Get("/marketplaces/mine", a.myMarketplaces)
		r.Delete("/marketplaces/{id}", a.deleteMarketplace)
	})

	return r
}

func (a *App) scanURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "url is required"})
		return
	}
	verdict, err := a.reports.Scan(r.Context(), req.URL)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (a *App) reportSite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL           string `json:"url"`
		AccusedWallet string `json:"accusedWallet"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if req.URL == "" || req.AccusedWallet == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "url and accusedWallet are required"})
		return
	}
	res, err := a.reports.ReportSite(r.Context(), req.URL, req.AccusedWallet)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) reportByUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL        string `json:"url"`
		UserWallet string `json:"userWallet"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if req.URL == "" || req.UserWallet == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "url and userWallet are required"})
		return
	}
	res, err := a.reports.ReportByUser(r.Context(), req.URL, req.UserWallet)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) listReports(w http.ResponseWriter, r *http.Request) {
	page, err := a.reports.Reports(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *App) listVerified(w http.ResponseWriter, r *http.Request) {
	page, err := a.reports.VerifiedReports(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *App) listPending(w http.ResponseWriter, r *http.Request) {
	page, err := a.reports.PendingReports(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *App) verifyReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "report id must be a non-negative integer"})
		return
	}
	res, err := a.reports.Verify(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) listDismissed(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	marks, err := a.dismissed.List(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if marks == nil {
		marks = []dismissed.Mark{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dismissed": marks})
}

func (a *App) dismissReport(w http.ResponseWriter, r *http.Request) {
	admin, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	var req struct {
		ReportID *int64 `json:"reportId"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if req.ReportID == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "reportId is required and must be a number"})
		return
	}
	mark, err := a.dismissed.Dismiss(r.Context(), *req.ReportID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.metrics.IncDismissal()
	a.logger.Info("report dismissed", "reportId", mark.ReportID, "by", admin)
	writeJSON(w, http.StatusCreated, map[string]any{"dismissed": mark})
}

func (a *App) listMarketplaces(w http.ResponseWriter, r *http.Request) {
	listings, err := a.market.List(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if listings == nil {
		listings = []types.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"marketplaces": listings})
}

func (a *App) createMarketplace(w http.ResponseWriter, r *http.Request) {
	subject, ok := a.requireSubject(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string   `json:"name"`
		URL         string   `json:"marketplaceUrl"`
		Category    string   `json:"category"`
		Tags        []string `json:"tags"`
		ImageURL    string   `json:"imageUrl"`
		Description string   `json:"description"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.URL == "" || req.Category == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "name, marketplaceUrl, and category are required"})
		return
	}

	// Screening happens before any catalog write: a malicious URL is
	// reported, auto-verified, and never listed.
	if err := a.reports.ScreenListing(r.Context(), req.URL, subject); err != nil {
		a.writeError(w, err)
		return
	}

	listing, err := a.market.Create(r.Context(), types.Listing{
		Name:        req.Name,
		URL:         req.URL,
		Category:    req.Category,
		Tags:        req.Tags,
		ImageURL:    req.ImageURL,
		Description: req.Description,
		CreatedBy:   subject,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"marketplace": listing})
}

func (a *App) myMarketplaces(w http.ResponseWriter, r *http.Request) {
	subject, ok := a.requireSubject(w, r)
	if !ok {
		return
	}
	listings, err := a.market.ListByCreator(r.Context(), subject)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if listings == nil {
		listings = []types.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"marketplaces": listings})
}

func (a *App) deleteMarketplace(w http.ResponseWriter, r *http.Request) {
	subject, ok := a.requireSubject(w, r)
	if !ok {
		return
	}
	if err := a.market.Delete(r.Context(), chi.URLParam(r, "id"), subject); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// requireSubject verifies the caller's token and returns its subject.
func (a *App) requireSubject(w http.ResponseWriter, r *http.Request) (string, bool) {
	subject, err := a.verifier.Subject(auth.FromRequest(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid or expired token"})
		return "", false
	}
	return subject, true
}

// requireAdmin additionally checks the subject against the admin list.
// Both checks run before any chain call is attempted.
func (a *App) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	subject, ok := a.requireSubject(w, r)
	if !ok {
		return "", false
	}
	if !a.verifier.IsAdmin(subject) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "admin access required"})
		return "", false
	}
	return subject, true
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return false
	}
	return true
}

// writeError maps the error taxonomy onto status codes. Chain and
// classifier failures keep their underlying reason text so operators can
// tell "classifier down" from "ledger rejected" from "ledger unreachable".
func (a *App) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var rejectedListing *report.ListingRejectedError
	var rejectedWrite *chain.RejectedError
	switch {
	case errors.As(err, &rejectedListing):
		status = http.StatusBadRequest
	case errors.Is(err, dismissed.ErrInvalidID), errors.Is(err, evidence.ErrTooLong):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, market.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, chain.ErrNotFound), errors.Is(err, market.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dismissed.ErrAlreadyDismissed), errors.Is(err, market.ErrDuplicate),
		errors.Is(err, report.ErrNotReported):
		status = http.StatusConflict
	case errors.As(err, &rejectedWrite):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, chain.ErrUnreachable), errors.Is(err, classifier.ErrUnavailable),
		errors.Is(err, classifier.ErrMalformed):
		status = http.StatusBadGateway
	}

	if status >= 500 {
		a.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
