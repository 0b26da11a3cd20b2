package controllers

import (
	"net/http"

	"github.com/gokselkaptan/takas-app-sub004/api/responses"
	"github.com/gokselkaptan/takas-app-sub004/internal/valor"
	pkgerrors "github.com/gokselkaptan/takas-app-sub004/pkg/errors"
	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
)

// ValorBalance returns the caller's available and locked balances.
func ValorBalance(svc valor.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "valor service unavailable"))
			return
		}

		actorID, ok := actorFromContext(r, logg, w)
		if !ok {
			return
		}

		balance, err := svc.Balance(r.Context(), actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// ValorHistory returns the caller's ledger entries, newest first.
func ValorHistory(svc valor.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "valor service unavailable"))
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

		items, cursor, err := svc.History(r.Context(), actorID, params)
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
