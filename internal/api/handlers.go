package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"stationbook/internal/availability"
	"stationbook/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DatesResponse is the body of GET /api/v1/services/:id/dates.
type DatesResponse struct {
	ServiceID int64                           `json:"service_id"`
	From      string                          `json:"from"`
	To        string                          `json:"to"`
	Dates     []availability.DateAvailability `json:"dates"`
}

// TimesResponse is the body of GET /api/v1/services/:id/times.
type TimesResponse struct {
	ServiceID int64                   `json:"service_id"`
	Date      string                  `json:"date"`
	Slots     []availability.TimeSlot `json:"slots"`
}

// handleDates returns the day view of a service.
// GET /api/v1/services/:id/dates?from=YYYY-MM-DD&to=YYYY-MM-DD[&customer_type_id=N]
func (s *HTTPServer) handleDates(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	serviceID, err := parseServiceID(ps)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}
	q := r.URL.Query()
	from, to, err := s.parseRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}
	customer, err := parseCustomerType(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}

	dates, err := s.avail.GetAvailableDates(r.Context(), availability.DatesQuery{
		ServiceID:      serviceID,
		From:           from,
		To:             to,
		CustomerTypeID: customer,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if dates == nil {
		dates = []availability.DateAvailability{}
	}

	writeJSON(w, http.StatusOK, DatesResponse{
		ServiceID: serviceID,
		From:      from.Format(time.DateOnly),
		To:        to.Format(time.DateOnly),
		Dates:     dates,
	})
}

// handleTimes returns the slots of one day.
// GET /api/v1/services/:id/times?date=YYYY-MM-DD[&customer_type_id=N]
func (s *HTTPServer) handleTimes(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	serviceID, err := parseServiceID(ps)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}
	q := r.URL.Query()
	raw := q.Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required", false)
		return
	}
	date, err := time.ParseInLocation(time.DateOnly, raw, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD", false)
		return
	}
	customer, err := parseCustomerType(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}

	list, err := s.avail.GetAvailableTimes(r.Context(), availability.TimesQuery{
		ServiceID:      serviceID,
		Date:           date,
		CustomerTypeID: customer,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if list == nil {
		list = []availability.TimeSlot{}
	}

	writeJSON(w, http.StatusOK, TimesResponse{
		ServiceID: serviceID,
		Date:      raw,
		Slots:     list,
	})
}

// handleExport renders every slot in a date range as a workbook.
// GET /api/v1/services/:id/export.xlsx?from=YYYY-MM-DD&to=YYYY-MM-DD[&customer_type_id=N]
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	serviceID, err := parseServiceID(ps)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}
	q := r.URL.Query()
	from, to, err := s.parseRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}
	customer, err := parseCustomerType(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}

	svc, err := s.catalog.FetchService(r.Context(), serviceID)
	if err != nil {
		writeEngineError(w, r, fmt.Errorf("%w: %v", availability.ErrDataFetch, err))
		return
	}
	if svc == nil {
		writeError(w, http.StatusNotFound, "service not found", false)
		return
	}

	var days []export.Day
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		list, err := s.avail.GetAvailableTimes(r.Context(), availability.TimesQuery{
			ServiceID:      serviceID,
			Date:           d,
			CustomerTypeID: customer,
		})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		days = append(days, export.Day{Date: d.Format(time.DateOnly), Slots: list})
	}

	var buf bytes.Buffer
	if err := export.WriteAvailability(&buf, svc.Name, days); err != nil {
		writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="availability_%d_%s_%s.xlsx"`,
		serviceID, from.Format(time.DateOnly), to.Format(time.DateOnly)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseServiceID(ps httprouter.Params) (int64, error) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid service id")
	}
	return id, nil
}

func parseCustomerType(q url.Values) (*int64, error) {
	raw := q.Get("customer_type_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid customer_type_id")
	}
	return &id, nil
}

// parseRange reads from/to as business-timezone dates.
func (s *HTTPServer) parseRange(q url.Values) (from, to time.Time, err error) {
	if q.Get("from") == "" || q.Get("to") == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("from and to are required")
	}
	from, err = time.ParseInLocation(time.DateOnly, q.Get("from"), s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from format; expected YYYY-MM-DD")
	}
	to, err = time.ParseInLocation(time.DateOnly, q.Get("to"), s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to format; expected YYYY-MM-DD")
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be before or equal to to")
	}
	if to.Sub(from) >= availability.MaxDateRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("date range exceeds maximum of %d days", availability.MaxDateRangeDays)
	}
	return from, to, nil
}
