package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/civichero/civichero/internal/audit"
	"github.com/civichero/civichero/internal/otp"
	"github.com/civichero/civichero/internal/phone"
	"github.com/civichero/civichero/internal/sms"
)

const (
	msgPhoneRequired  = "Phone number is required"
	msgFieldsRequired = "Phone number and verification code are required"
	msgInvalidPhone   = "Invalid phone number"
	msgInvalidBody    = "Invalid request body"
	msgSent           = "OTP sent successfully"
	msgDeliveryFailed = "OTP generated but could not be delivered"
	msgDevFallback    = "OTP generated (check console in development mode)"
	msgSendFailed     = "Failed to send OTP"
	msgNoCode         = "No verification code found. Please request a new code."
	msgExpired        = "Verification code expired. Please request a new code."
	msgMismatch       = "Invalid verification code"
	msgVerified       = "Phone number verified successfully"
	msgVerifyFailed   = "Failed to verify OTP"
)

type sendRequest struct {
	Phone string `json:"phone"`
}

type sendResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	DevelopmentOTP string `json:"developmentOTP,omitempty"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	OTP   string `json:"otp"`
}

// User is the profile stub returned to a newly verified phone.
type User struct {
	ID                  string    `json:"id"`
	Phone               string    `json:"phone"`
	IsAuthenticated     bool      `json:"isAuthenticated"`
	OnboardingCompleted bool      `json:"onboardingCompleted"`
	CreatedAt           time.Time `json:"createdAt"`
	Achievements        []string  `json:"achievements"`
	Tokens              int       `json:"tokens"`
	XP                  int       `json:"xp"`
	Level               int       `json:"level"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		s.writeError(w, http.StatusBadRequest, msgPhoneRequired)
		return
	}
	number, err := phone.Normalize(req.Phone)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, msgInvalidPhone)
		return
	}

	ctx := r.Context()
	code, err := s.registry.Issue(ctx, number)
	if err != nil {
		s.logger.Error("Could not issue code", "phone", phone.Mask(number), "err", err)
		s.writeError(w, http.StatusInternalServerError, msgSendFailed)
		return
	}
	s.record(ctx, number, audit.KindIssued, "")

	resp := sendResponse{Success: true, Message: msgSent}
	// delivery failure never takes the code back
	if err := s.sender.Send(ctx, number, sms.OTPMessage(code, s.registry.TTL())); err != nil {
		s.record(ctx, number, audit.KindDeliveryFailed, err.Error())
		if s.production() || !s.echoAllowed(err) {
			s.logger.Warn("SMS delivery failed", "phone", phone.Mask(number), "err", err)
			resp.Message = msgDeliveryFailed
		} else {
			s.logger.Warn("SMS delivery failed, echoing code", "phone", phone.Mask(number), "code", code, "err", err)
			resp.Message = msgDevFallback
			resp.DevelopmentOTP = code
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// echoAllowed reports whether a failed delivery may hand the code back to
// the caller. A configured provider never gets the fallback, even outside
// production.
func (s *Server) echoAllowed(err error) bool {
	return errors.Is(err, sms.ErrNotConfigured) || !s.sender.Configured()
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = strings.TrimSpace(req.OTP)
	}
	if strings.TrimSpace(req.Phone) == "" || code == "" {
		s.writeError(w, http.StatusBadRequest, msgFieldsRequired)
		return
	}
	number, err := phone.Normalize(req.Phone)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, msgInvalidPhone)
		return
	}

	ctx := r.Context()
	err = s.registry.Verify(ctx, number, code)
	switch {
	case err == nil:
	case errors.Is(err, otp.ErrNotFound):
		s.record(ctx, number, audit.KindRejected, "not_found")
		s.writeError(w, http.StatusBadRequest, msgNoCode)
		return
	case errors.Is(err, otp.ErrExpired):
		s.record(ctx, number, audit.KindRejected, "expired")
		s.writeError(w, http.StatusBadRequest, msgExpired)
		return
	case errors.Is(err, otp.ErrMismatch):
		s.record(ctx, number, audit.KindRejected, "mismatch")
		s.writeError(w, http.StatusBadRequest, msgMismatch)
		return
	default:
		s.logger.Error("Could not verify code", "phone", phone.Mask(number), "err", err)
		s.writeError(w, http.StatusInternalServerError, msgVerifyFailed)
		return
	}

	s.record(ctx, number, audit.KindVerified, "")
	s.writeJSON(w, http.StatusOK, verifyResponse{
		Success: true,
		Message: msgVerified,
		User:    s.newUser(number),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// newUser builds the profile a first login starts with.
func (s *Server) newUser(number string) *User {
	return &User{
		ID:                  s.newID(),
		Phone:               number,
		IsAuthenticated:     true,
		OnboardingCompleted: false,
		CreatedAt:           time.Now().UTC(),
		Achievements:        []string{"first_login"},
		Tokens:              50,
		XP:                  0,
		Level:               1,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Could not write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
