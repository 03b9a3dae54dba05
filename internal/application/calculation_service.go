package application

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/driver-desk/internal/domain/apperror"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	repo "github.com/oksasatya/driver-desk/internal/domain/repository"
)

// TransferFee is deducted from every transfer.
const TransferFee = 45.0

// Columns read from an uploaded sheet, matched case-insensitively.
const (
	colTotal = "total"
	colT2    = "t2"
	colCash  = "cash"
	colVat   = "vat"
)

// AcceptedSheetTypes are the upload content types treated as CSV.
var AcceptedSheetTypes = []string{
	"text/csv",
	"application/csv",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func IsSheetContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	for _, t := range AcceptedSheetTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// Totals are the column sums of one sheet.
type Totals struct {
	Total float64
	Cash  float64
	Vat   float64
}

type CalculationService struct {
	Repo   repo.CalculationRepository
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewCalculationService(r repo.CalculationRepository, logger *logrus.Logger) *CalculationService {
	return &CalculationService{Repo: r, Logger: orDiscard(logger)}
}

func (s *CalculationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Upload sums a sheet, adds the extra VAT and stores the result.
// transfer = total + cash + vat - TransferFee.
func (s *CalculationService) Upload(ctx context.Context, p *Principal, r io.Reader, sumaVat string) (*entity.DriverCalculation, error) {
	if err := RequireRole(p, entity.RoleAdmin); err != nil {
		return nil, err
	}
	extra, err := parseAmount(sumaVat)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "sumavat must be a number", err)
	}
	t, err := SumSheet(r)
	if err != nil {
		return nil, err
	}
	t.Vat += extra
	transfer := t.Total + t.Cash + t.Vat - TransferFee

	calc := &entity.DriverCalculation{
		ID:         uuid.NewString(),
		Total:      money(t.Total),
		Cash:       money(t.Cash),
		Vat:        money(t.Vat),
		Transfer:   money(transfer),
		UploadedBy: p.Account.ID,
		CreatedAt:  s.now(),
	}
	if err := s.Repo.Create(ctx, calc); err != nil {
		s.Logger.WithError(err).Error("store driver calculation failed")
		return nil, unexpected(err)
	}
	s.Logger.WithFields(logrus.Fields{"calculation_id": calc.ID, "transfer": calc.Transfer}).Info("driver calculation stored")
	return calc, nil
}

// Latest returns the most recent calculation.
func (s *CalculationService) Latest(ctx context.Context) (*entity.DriverCalculation, error) {
	c, err := s.Repo.Latest(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.Wrap(apperror.KindNotFound, "no calculation has been uploaded yet", err)
	}
	if err != nil {
		return nil, unexpected(err)
	}
	return c, nil
}

// SumSheet reads a CSV with a header row and sums Total+T2, Cash and Vat.
// Empty cells count as zero; missing columns contribute nothing.
func SumSheet(r io.Reader) (Totals, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Totals{}, apperror.New(apperror.KindValidation, "the uploaded file is empty")
	}
	if err != nil {
		return Totals{}, apperror.Wrap(apperror.KindValidation, "the uploaded file is not valid CSV", err)
	}

	idx := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}
	known := false
	for _, c := range []string{colTotal, colT2, colCash, colVat} {
		if _, ok := idx[c]; ok {
			known = true
		}
	}
	if !known {
		return Totals{}, apperror.New(apperror.KindValidation, "the uploaded file has none of the Total, T2, Cash or Vat columns")
	}

	var t Totals
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Totals{}, apperror.Wrap(apperror.KindValidation, "the uploaded file is not valid CSV", err)
		}
		cell := func(col string) (float64, error) {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return 0, nil
			}
			v, err := parseAmount(rec[i])
			if err != nil {
				return 0, apperror.Wrap(apperror.KindValidation, fmt.Sprintf("row %d: %s is not a number", line, col), err)
			}
			return v, nil
		}
		total, err := cell(colTotal)
		if err != nil {
			return Totals{}, err
		}
		t2, err := cell(colT2)
		if err != nil {
			return Totals{}, err
		}
		cash, err := cell(colCash)
		if err != nil {
			return Totals{}, err
		}
		vat, err := cell(colVat)
		if err != nil {
			return Totals{}, err
		}
		t.Total += total + t2
		t.Cash += cash
		t.Vat += vat
	}
	return t, nil
}

func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return v, nil
}

// money formats with two decimals, rounding half away from zero.
func money(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', 2, 64)
}
