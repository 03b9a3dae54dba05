package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/internal/application"
	"github.com/oksasatya/driver-desk/internal/domain/apperror"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/internal/interface/httperr"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
	"github.com/oksasatya/driver-desk/pkg/response"
)

// MaxSheetBytes caps uploaded sheets.
const MaxSheetBytes = 10 << 20

// CalculationUseCases is implemented by *application.CalculationService.
type CalculationUseCases interface {
	Upload(ctx context.Context, p *application.Principal, r io.Reader, sumaVat string) (*entity.DriverCalculation, error)
	Latest(ctx context.Context) (*entity.DriverCalculation, error)
}

var _ CalculationUseCases = (*application.CalculationService)(nil)

var (
	errNoSheet  = apperror.New(apperror.KindValidation, "please upload a csv file in the csvFile field")
	errNotSheet = apperror.New(apperror.KindValidation, "please upload only csv or excel files")
)

type UploadHandler struct {
	Svc  CalculationUseCases
	Errs httperr.Writer
}

func NewUploadHandler(svc CalculationUseCases, errs httperr.Writer) *UploadHandler {
	return &UploadHandler{Svc: svc, Errs: errs}
}

// Upload POST /api/v1/up/upload-excel (multipart "csvFile", form "sumavat")
func (h *UploadHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("csvFile")
	if err != nil {
		h.Errs.Write(c, errNoSheet)
		return
	}
	if !application.IsSheetContentType(fh.Header.Get("Content-Type")) {
		h.Errs.Write(c, errNotSheet)
		return
	}
	if fh.Size > MaxSheetBytes {
		h.Errs.Write(c, apperror.New(apperror.KindValidation, "file must be 10MB or smaller"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	defer func() { _ = f.Close() }()

	calc, err := h.Svc.Upload(c.Request.Context(), middleware.PrincipalFrom(c), f, c.PostForm("sumavat"))
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success(c, http.StatusCreated, calc, "file processed", nil)
}

// Latest GET /api/v1/up/get-driver-calculation
func (h *UploadHandler) Latest(c *gin.Context) {
	calc, err := h.Svc.Latest(c.Request.Context())
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success(c, http.StatusOK, calc, "", nil)
}
