package http

import (
	"net/http"

	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

func newHealthHandler(cfg *config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, http.StatusOK, &model.HealthStatus{
			Status:     "healthy",
			Service:    "herald",
			Version:    types.Version,
			Pipeline:   cfg.pipeline,
			SignedOnly: cfg.signedOnly,
		})
	}
}
