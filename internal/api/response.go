package api

import (
	"errors"
	"net/http"
	"time"

	"BuyTracer/internal/model"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type meta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type errorBody struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail,omitempty"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	Meta    meta       `json:"meta"`
}

var statusByCode = map[model.ErrorCode]int{
	model.CodeInvalidTicker:       http.StatusBadRequest,
	model.CodeInvalidRequest:      http.StatusBadRequest,
	model.CodeInvalidBars:         http.StatusBadRequest,
	model.CodeEmptyBars:           http.StatusBadRequest,
	model.CodeInsufficientHistory: http.StatusUnprocessableEntity,
	model.CodeUnsupportedMarket:   http.StatusUnprocessableEntity,
	model.CodeTickerNotFound:      http.StatusNotFound,
	model.CodeCacheNotFound:       http.StatusNotFound,
	model.CodePartialSyncFailure:  http.StatusBadGateway,
	model.CodeCacheCorruption:     http.StatusInternalServerError,
}

func (h *Handler) meta() meta {
	return meta{Timestamp: time.Now(), Version: h.version}
}

func (h *Handler) writeData(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data, Meta: h.meta()})
}

// writeError renders err in the envelope. Unclassified errors become 500
// and keep their text out of the response unless debug is on.
func (h *Handler) writeError(c *gin.Context, err error) {
	body := &errorBody{Code: model.CodeInternal, Message: "internal server error"}
	status := http.StatusInternalServerError

	var me *model.Error
	if errors.As(err, &me) {
		body.Code = me.Code
		body.Message = me.Message
		if s, ok := statusByCode[me.Code]; ok {
			status = s
		}
		if h.debug {
			body.Detail = me.Detail
		}
	}
	if h.debug && body.Detail == "" {
		body.Detail = err.Error()
	}
	if status >= http.StatusInternalServerError {
		log.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
	}
	c.JSON(status, envelope{Success: false, Error: body, Meta: h.meta()})
}
