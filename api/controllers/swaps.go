package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gokselkaptan/takas-app-sub004/api/middleware"
	"github.com/gokselkaptan/takas-app-sub004/api/responses"
	"github.com/gokselkaptan/takas-app-sub004/api/validators"
	"github.com/gokselkaptan/takas-app-sub004/internal/swaps"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	pkgerrors "github.com/gokselkaptan/takas-app-sub004/pkg/errors"
	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

type createSwapRequest struct {
	ProductID        string  `json:"product_id" validate:"required,uuid4"`
	OfferedValor     *string `json:"offered_valor,omitempty"`
	OfferedProductID *string `json:"offered_product_id,omitempty"`
}

// SwapCreate opens a new offer against a listed product.
func SwapCreate(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}

		var req createSwapRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := uuid.Parse(req.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		input := swaps.CreateOfferInput{
			RequesterID: actorID,
			ProductID:   productID,
		}
		if req.OfferedValor != nil {
			amount, err := decimal.NewFromString(strings.TrimSpace(*req.OfferedValor))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offered_valor amount"))
				return
			}
			input.OfferedValor = &amount
		}
		if req.OfferedProductID != nil {
			offered, err := uuid.Parse(strings.TrimSpace(*req.OfferedProductID))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offered_product_id"))
				return
			}
			input.OfferedProductID = &offered
		}

		swap, err := svc.CreateOffer(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, swap)
	}
}

// SwapAccept records the owner's acceptance and locks both escrow legs.
func SwapAccept(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		swap, err := svc.AcceptOffer(r.Context(), swapID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, swap)
	}
}

type setupDeliveryRequest struct {
	Method          string   `json:"method" validate:"required"`
	DeliveryPointID *string  `json:"delivery_point_id,omitempty"`
	Location        *string  `json:"location,omitempty"`
	PackagingPhotos []string `json:"packaging_photos,omitempty" validate:"max=10"`
}

type setupDeliveryResponse struct {
	Swap             any    `json:"swap"`
	DeliveryCode     string `json:"delivery_code"`
	VerificationCode string `json:"verification_code"`
}

// SwapSetupDelivery records shipping arrangements and mints the one-time codes.
func SwapSetupDelivery(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		var req setupDeliveryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParseDeliveryMethod(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery method"))
			return
		}

		input := swaps.SetupDeliveryInput{
			SwapID:          swapID,
			ActorID:         actorID,
			Method:          method,
			PackagingPhotos: req.PackagingPhotos,
		}
		if req.DeliveryPointID != nil {
			pointID, err := uuid.Parse(strings.TrimSpace(*req.DeliveryPointID))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery_point_id"))
				return
			}
			input.DeliveryPointID = &pointID
		}
		if req.Location != nil {
			trimmed := validators.SanitizeString(*req.Location, 500)
			input.Location = &trimmed
		}

		setup, err := svc.SetupDelivery(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, setupDeliveryResponse{
			Swap:             setup.Swap,
			DeliveryCode:     setup.DeliveryCode,
			VerificationCode: setup.VerificationCode,
		})
	}
}

type redeemDeliveryRequest struct {
	Code            string   `json:"code" validate:"required,min=4,max=32"`
	ReceivingPhotos []string `json:"receiving_photos,omitempty" validate:"max=10"`
}

// SwapRedeemDelivery marks the item as handed over once the code checks out.
func SwapRedeemDelivery(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		var req redeemDeliveryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		swap, err := svc.RedeemDelivery(r.Context(), swapID, actorID, strings.TrimSpace(req.Code), req.ReceivingPhotos)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, swap)
	}
}

// SwapConfirm records the caller's settlement confirmation. The swap settles
// once both parties have confirmed.
func SwapConfirm(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		result, err := svc.ConfirmSettlement(r.Context(), swapID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type cancelSwapRequest struct {
	Reason string  `json:"reason" validate:"required"`
	Note   *string `json:"note,omitempty"`
}

// SwapCancel unilaterally cancels the swap when the lifecycle still allows it.
func SwapCancel(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		var req cancelSwapRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason, err := enums.ParseCancelReason(req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancel reason"))
			return
		}

		input := swaps.CancelInput{
			SwapID:  swapID,
			ActorID: actorID,
			Reason:  reason,
		}
		if req.Note != nil {
			note := validators.SanitizeString(*req.Note, 1000)
			input.Note = &note
		}

		if err := svc.Cancel(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

// SwapRequestMutualCancel asks the counterparty to agree to a cancellation.
func SwapRequestMutualCancel(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		if err := svc.RequestMutualCancel(r.Context(), swapID, actorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancel_requested"})
	}
}

type mutualCancelResponseRequest struct {
	Approve bool `json:"approve"`
}

// SwapRespondMutualCancel approves or declines a pending cancel request.
func SwapRespondMutualCancel(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		var req mutualCancelResponseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RespondMutualCancel(r.Context(), swapID, actorID, req.Approve); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := "cancel_declined"
		if req.Approve {
			status = "cancelled"
		}
		responses.WriteSuccess(w, map[string]string{"status": status})
	}
}

// SwapDetail returns the swap with its status history for a participant.
func SwapDetail(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		swap, err := svc.GetSwap(r.Context(), swapID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		log, err := svc.GetStatusLog(r.Context(), swapID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"swap":       swap,
			"status_log": log,
		})
	}
}

// SwapList returns the caller's swaps, newest first.
func SwapList(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}

		params, ok := paginationFromQuery(r, logg, w)
		if !ok {
			return
		}

		items, cursor, err := svc.ListForUser(r.Context(), actorID, params)
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

type adminForceCompleteRequest struct {
	Note string `json:"note" validate:"required,min=3,max=1000"`
}

// AdminSwapForceComplete settles a stuck swap on operator authority.
func AdminSwapForceComplete(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		adminID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		var req adminForceCompleteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ForceComplete(r.Context(), swapID, adminID, validators.SanitizeString(req.Note, 1000)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "completed"})
	}
}

// AdminSwapForceCancel refunds both sides of a swap tied to a suspended account.
func AdminSwapForceCancel(svc swaps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "swaps service unavailable"))
			return
		}

		adminID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}
		swapID, ok := swapIDFromRoute(r, logg, w)
		if !ok {
			return
		}

		if err := svc.ForceCancelSuspended(r.Context(), swapID, adminID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

func actorFromContext(r *http.Request, logg *logger.Logger, w http.ResponseWriter) (uuid.UUID, bool) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return uuid.Nil, false
	}
	actorID, err := uuid.Parse(raw)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id"))
		return uuid.Nil, false
	}
	return actorID, true
}

func swapIDFromRoute(r *http.Request, logg *logger.Logger, w http.ResponseWriter) (uuid.UUID, bool) {
	swapID, err := uuid.Parse(chi.URLParam(r, "swapId"))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid swap id"))
		return uuid.Nil, false
	}
	return swapID, true
}

func paginationFromQuery(r *http.Request, logg *logger.Logger, w http.ResponseWriter) (pagination.Params, bool) {
	params := pagination.Params{
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return pagination.Params{}, false
	}
	params.Limit = limit
	return params, true
}
