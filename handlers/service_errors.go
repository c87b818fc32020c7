package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/identity-gateway/services"
	"github.com/upb/identity-gateway/utils"
)

// HandleServiceError maps domain errors to HTTP responses.
// Authentication failures always use the fixed body.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	var writeErr error

	switch {
	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w)
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, "")
	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, "Invalid request", details)
	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, "Resource already exists", details)
	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, "")
		logger.Warn("rate limit exceeded", zap.Error(err))
	default:
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError reports a request that failed decoding or struct
// validation as an invalid input error.
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	invalid := services.Wrap(services.ErrInvalidInput, err)
	if utils.IsValidationError(err) {
		for field, msg := range utils.GetValidationFields(err) {
			invalid = invalid.WithDetail(field, msg)
		}
	} else {
		invalid = invalid.WithDetail("body", err.Error())
	}
	HandleServiceError(w, invalid, logger)
}
