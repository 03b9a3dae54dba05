// Package httperr turns application errors into response envelopes.
package httperr

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/driver-desk/internal/domain/apperror"
	"github.com/oksasatya/driver-desk/pkg/helpers"
	"github.com/oksasatya/driver-desk/pkg/response"
)

// Writer reports errors to callers. Dev exposes the underlying cause in the
// envelope's error field; otherwise only the classified message is sent.
type Writer struct {
	Logger *logrus.Logger
	Dev    bool
}

func New(logger *logrus.Logger, dev bool) Writer {
	if logger == nil {
		logger = helpers.NewDiscardLogger()
	}
	return Writer{Logger: logger, Dev: dev}
}

// Write aborts the request with the status and message for err's kind.
func (w Writer) Write(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := kind.Status()

	msg := apperror.ErrUnexpected.Message
	var ae *apperror.Error
	if kind != apperror.KindUnexpected && errors.As(err, &ae) {
		msg = ae.Message
	}

	if status >= 500 {
		w.Logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
			"kind":       kind.String(),
		}).Error("request failed")
	}

	var detail interface{}
	if w.Dev {
		detail = gin.H{"kind": kind.String(), "cause": err.Error()}
	}
	response.Error[any](c, status, msg, detail)
}
