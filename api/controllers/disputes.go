package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gokselkaptan/takas-app-sub004/api/responses"
	"github.com/gokselkaptan/takas-app-sub004/api/validators"
	"github.com/gokselkaptan/takas-app-sub004/internal/disputes"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	pkgerrors "github.com/gokselkaptan/takas-app-sub004/pkg/errors"
	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
)

type openDisputeRequest struct {
	SwapID      string   `json:"swap_id" validate:"required,uuid4"`
	Type        string   `json:"type" validate:"required"`
	Description string   `json:"description" validate:"required,min=10,max=2000"`
	Evidence    []string `json:"evidence,omitempty" validate:"max=10"`
}

// DisputeOpen files a dispute against a delivered swap and freezes settlement.
func DisputeOpen(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}

		var req openDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		swapID, err := uuid.Parse(req.SwapID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid swap id"))
			return
		}

		disputeType, err := enums.ParseDisputeType(req.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute type"))
			return
		}

		report, err := svc.Open(r.Context(), disputes.OpenInput{
			SwapID:      swapID,
			ReporterID:  actorID,
			Type:        disputeType,
			Description: validators.SanitizeString(req.Description, 2000),
			Evidence:    req.Evidence,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, report)
	}
}

type submitEvidenceRequest struct {
	Evidence []string `json:"evidence" validate:"required,min=1,max=10"`
}

// DisputeSubmitEvidence attaches evidence for either party before the deadline.
func DisputeSubmitEvidence(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		disputeID, ok := disputeIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		var req submitEvidenceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.SubmitEvidence(r.Context(), disputeID, actorID, req.Evidence)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

type resolveDisputeRequest struct {
	Uphold       bool    `json:"uphold"`
	Compensation *string `json:"compensation,omitempty"`
	Note         string  `json:"note" validate:"required,min=3,max=2000"`
}

// AdminDisputeResolve closes a dispute, either compensating the reporter or
// returning the swap to its delivered state.
func AdminDisputeResolve(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		adminID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		disputeID, ok := disputeIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		var req resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := disputes.ResolveInput{
			DisputeID: disputeID,
			AdminID:   adminID,
			Uphold:    req.Uphold,
			Note:      validators.SanitizeString(req.Note, 2000),
		}
		if req.Compensation != nil {
			amount, err := decimal.NewFromString(strings.TrimSpace(*req.Compensation))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid compensation amount"))
				return
			}
			input.Compensation = amount
		}

		if err := svc.Resolve(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := "rejected"
		if req.Uphold {
			status = "resolved"
		}
		responses.WriteSuccess(w, map[string]string{"status": status})
	}
}

// DisputeDetail returns a single dispute report.
func DisputeDetail(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		disputeID, ok := disputeIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		report, err := svc.Get(r.Context(), disputeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// AdminDisputeQueue lists open disputes for the operators, oldest exposure first.
func AdminDisputeQueue(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		params, ok := paginationFromQuery(r, logg, w)
		if !ok {
			return
		}

		items, cursor, err := svc.ListOpen(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  items,
			"cursor": cursor,
		})
	}
}

func disputeIDFromRoute(r *http.Request, logg *logger.Logger, w http.ResponseWriter) (uuid.UUID, bool) {
	disputeID, err := uuid.Parse(chi.URLParam(r, "disputeId"))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute id"))
		return uuid.Nil, false
	}
	return disputeID, true
}
