package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-mds-provider/pkg/apperrors"
)

// MDSVersion is the spec version stamped on every response.
const MDSVersion = "2.0.0"

// MDSContentType carries the spec version in its parameters, as the MDS
// provider spec requires.
const MDSContentType = "application/vnd.mds+json;version=" + MDSVersion

// MDSResponse writes a success envelope: version plus the entity payload,
// with the MDS content type.
func MDSResponse(c *gin.Context, status int, payload gin.H) {
	body := gin.H{"version": MDSVersion}
	for k, v := range payload {
		body[k] = v
	}
	c.Header("Content-Type", MDSContentType)
	c.JSON(status, body)
}

// ErrorResponse writes an MDS error envelope with an explicit status.
func ErrorResponse(c *gin.Context, status int, code, description string) {
	c.Header("Content-Type", MDSContentType)
	c.JSON(status, gin.H{
		"error":             code,
		"error_description": description,
		"error_details":     description,
	})
}

// AppErrorResponse maps an error from the usecase layer onto the HTTP
// surface: 400 for validation, 404 for not-found, 202 for still-processing,
// 500 for upstream failures and anything unclassified.
func AppErrorResponse(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		ErrorResponse(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindProcessing:
		status = http.StatusAccepted
	case apperrors.KindUpstream:
		status = http.StatusInternalServerError
	}

	details := appErr.Message
	if appErr.Err != nil {
		details = appErr.Err.Error()
	}

	c.Header("Content-Type", MDSContentType)
	c.JSON(status, gin.H{
		"error":             appErr.Code,
		"error_description": appErr.Message,
		"error_details":     details,
	})
}
