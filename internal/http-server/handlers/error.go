package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/zanzhit/station_recorder/internal/lib/api/response"
)

// Error writes the error body with statusCode. Server errors always carry the
// request id so they can be found in the logs.
func Error(w http.ResponseWriter, r *http.Request, statusCode int, err response.Response) {
	if statusCode >= http.StatusInternalServerError && err.RequestID == "" {
		err.RequestID = middleware.GetReqID(r.Context())
	}

	render.Status(r, statusCode)
	render.JSON(w, r, err)
}
