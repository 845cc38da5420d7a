package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// newRunHandler serves the run recorded for an event identity
func newRunHandler(triggerUC interfaces.TriggerUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		eventID := types.EventID(chi.URLParam(r, "eventID"))

		run, err := triggerUC.LookupRun(ctx, eventID)
		switch {
		case errors.Is(err, types.ErrRunNotFound):
			writeError(ctx, w, goerr.New("run not found"), http.StatusNotFound)
		case err != nil:
			writeError(ctx, w, err, http.StatusInternalServerError)
		default:
			writeJSON(ctx, w, http.StatusOK, run)
		}
	}
}
