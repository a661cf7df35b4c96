package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/protagolabs/agentcore/pkg/repo"
)

// mapServiceError maps repository-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *repo.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, repo.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, repo.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}
	if errors.Is(err, repo.ErrNotAuthorized) {
		return echo.NewHTTPError(http.StatusForbidden, "not authorized")
	}
	if errors.Is(err, repo.ErrNotClaimable) {
		return echo.NewHTTPError(http.StatusConflict, "job is not in a runnable state")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
