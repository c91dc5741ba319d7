package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arenda/internal/database"
	"arenda/internal/models"
	"arenda/internal/service"
)

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleCalendarCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	property, ok := s.resolveProperty(w, r.URL.Query().Get("property_uid"))
	if !ok {
		return
	}
	start, end, ok := parseStay(w, r.URL.Query().Get("checkin"), r.URL.Query().Get("checkout"))
	if !ok {
		return
	}

	var userID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = parsed
	}

	check, err := s.reservations.CheckAvailability(r.Context(), property.ID, start, end, userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *HTTPServer) handleCalendarBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		PropertyUID string `json:"property_uid"`
		Start       string `json:"start"`
		End         string `json:"end"`
		Reason      string `json:"reason"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	property, ok := s.resolveProperty(w, body.PropertyUID)
	if !ok {
		return
	}
	start, end, ok := parseStay(w, body.Start, body.End)
	if !ok {
		return
	}

	if err := s.reservations.BlockRange(r.Context(), property.ID, start, end, body.Reason); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

func (s *HTTPServer) handleCalendarUnblock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		PropertyUID string `json:"property_uid"`
		Start       string `json:"start"`
		End         string `json:"end"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	property, ok := s.resolveProperty(w, body.PropertyUID)
	if !ok {
		return
	}
	start, end, ok := parseStay(w, body.Start, body.End)
	if !ok {
		return
	}

	if err := s.reservations.UnblockRange(r.Context(), property.ID, start, end); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

func (s *HTTPServer) handleCalendarReserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		PropertyUID string `json:"property_uid"`
		Start       string `json:"start"`
		End         string `json:"end"`
		BookingID   int64  `json:"booking_id"`
		HoldMinutes int    `json:"hold_minutes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.BookingID == 0 {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}

	property, ok := s.resolveProperty(w, body.PropertyUID)
	if !ok {
		return
	}
	start, end, ok := parseStay(w, body.Start, body.End)
	if !ok {
		return
	}

	holdExpiresAt, err := s.reservations.ReserveRange(r.Context(), property.ID, start, end, body.BookingID, body.HoldMinutes)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hold_expires_at": holdExpiresAt})
}

func (s *HTTPServer) handleCalendarSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	released, err := s.reservations.ReclaimExpiredHolds(r.Context(), time.Now().UTC(), s.bookingGrace)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": released})
}

func (s *HTTPServer) handleBookingDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		PropertyUID string  `json:"property_uid"`
		UserID      int64   `json:"user_id"`
		Checkin     string  `json:"checkin"`
		Checkout    string  `json:"checkout"`
		UnitPrice   float64 `json:"unit_price"`
		ServiceFee  float64 `json:"service_fee"`
		Nights      int     `json:"nights"`
		HoldMinutes int     `json:"hold_minutes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	property, ok := s.resolveProperty(w, body.PropertyUID)
	if !ok {
		return
	}
	start, end, ok := parseStay(w, body.Checkin, body.Checkout)
	if !ok {
		return
	}

	result, err := s.reservations.PlaceBookingDraft(r.Context(), service.DraftRequest{
		UserID:      body.UserID,
		PropertyID:  property.ID,
		Start:       start,
		End:         end,
		UnitPrice:   body.UnitPrice,
		ServiceFee:  body.ServiceFee,
		Nights:      body.Nights,
		HoldMinutes: body.HoldMinutes,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleBookingConfirm(w http.ResponseWriter, r *http.Request) {
	s.handleBookingStatusChange(w, r, s.reservations.ConfirmBooking, "confirmed")
}

func (s *HTTPServer) handleBookingCancel(w http.ResponseWriter, r *http.Request) {
	s.handleBookingStatusChange(w, r, s.reservations.CancelBooking, "cancelled")
}

func (s *HTTPServer) handleBookingStatusChange(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, bookingID int64) error, status string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		BookingID int64 `json:"booking_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.BookingID == 0 {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}

	if err := apply(r.Context(), body.BookingID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *HTTPServer) handleAuctionOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		PropertyUID   string  `json:"property_uid"`
		Start         string  `json:"start"`
		End           string  `json:"end"`
		StartingPrice float64 `json:"starting_price"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	property, ok := s.resolveProperty(w, body.PropertyUID)
	if !ok {
		return
	}
	start, end, ok := parseStay(w, body.Start, body.End)
	if !ok {
		return
	}

	auction := &models.Auction{
		PropertyID:      property.ID,
		StayPeriodStart: start,
		StayPeriodEnd:   end,
		CurrentPrice:    body.StartingPrice,
	}
	if err := s.auctions.OpenAuction(r.Context(), auction); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"auction_id": auction.ID})
}

func (s *HTTPServer) handleAuctionResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		AuctionID       int64  `json:"auction_id"`
		WinnerBookingID int64  `json:"winner_booking_id"`
		Source          string `json:"source"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.AuctionID == 0 || body.WinnerBookingID == 0 {
		writeError(w, http.StatusBadRequest, "auction_id and winner_booking_id are required")
		return
	}

	if err := s.auctions.ResolveAuction(r.Context(), body.AuctionID, body.WinnerBookingID, body.Source); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *HTTPServer) handleAuctionCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		AuctionID int64 `json:"auction_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.AuctionID == 0 {
		writeError(w, http.StatusBadRequest, "auction_id is required")
		return
	}

	if err := s.auctions.CancelAuction(r.Context(), body.AuctionID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *HTTPServer) resolveProperty(w http.ResponseWriter, uid string) (*models.Property, bool) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "property_uid is required")
		return nil, false
	}
	property, err := s.db.PropertyByUID(uid)
	if err != nil {
		writeError(w, http.StatusNotFound, "property not found")
		return nil, false
	}
	return property, true
}

func parseStay(w http.ResponseWriter, checkin, checkout string) (time.Time, time.Time, bool) {
	start, err := time.ParseInLocation(models.DayFormat, strings.TrimSpace(checkin), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid checkin; expected YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	end, err := time.ParseInLocation(models.DayFormat, strings.TrimSpace(checkout), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid checkout; expected YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrInvalidRange),
		errors.Is(err, database.ErrPastDate),
		errors.Is(err, database.ErrDateTooFar):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, database.ErrRangeUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrUnknownProperty),
		errors.Is(err, database.ErrBookingNotFound),
		errors.Is(err, database.ErrAuctionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
