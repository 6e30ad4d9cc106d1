package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/phoneotp/server/internal/auth"
	"github.com/phoneotp/server/internal/logger"
	"github.com/phoneotp/server/internal/middleware"
	"github.com/phoneotp/server/internal/model"
)

const (
	msgPhoneRequired  = "Phone number is required"
	msgInvalidPhone   = "Invalid phone number"
	msgBothRequired   = "Phone number and OTP code are required"
	msgOTPSent        = "OTP sent successfully"
	msgSendFailed     = "Failed to send OTP"
	msgOTPVerified    = "OTP verified successfully"
	msgInvalidOTP     = "Invalid or expired OTP"
	msgVerifyFailed   = "Failed to verify OTP"
	msgRateLimited    = "rate limit exceeded"
	msgInvalidRequest = "invalid request body"
	msgBodyTooLarge   = "request body too large"
)

// maxBodyBytes caps decoded request bodies.
const maxBodyBytes = 4 << 10

// PhoneAuth is the auth flow the handlers drive.
type PhoneAuth interface {
	SendCode(ctx context.Context, in auth.SendCodeInput) (auth.SendCodeResult, error)
	VerifyCode(ctx context.Context, rawPhone, code string) (model.Credential, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService PhoneAuth
	devMode     bool
	log         *zap.Logger
}

// NewAuthHandler creates a new auth handler. In devMode the issued code is
// echoed back in the send-code response.
func NewAuthHandler(authService PhoneAuth, devMode bool, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		devMode:     devMode,
		log:         log,
	}
}

// sendCodeRequest is the request body for POST /auth/phone/send-code
type sendCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// sendCodeResponse is the JSON response for send-code
type sendCodeResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
	DevOTP  string `json:"devOtp,omitempty"`
}

// verifyCodeRequest is the request body for POST /auth/phone/verify-code
type verifyCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTPCode     string `json:"otpCode"`
}

// verifyCodeResponse is the JSON response for verify-code
type verifyCodeResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// meResponse is the JSON response for GET /me
type meResponse struct {
	UserID      int64   `json:"userId"`
	PhoneNumber string  `json:"phoneNumber"`
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
}

// HandleSendCode handles POST /auth/phone/send-code
func (h *AuthHandler) HandleSendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.PhoneNumber) == "" {
		respondWithError(w, http.StatusBadRequest, msgPhoneRequired)
		return
	}

	res, err := h.authService.SendCode(r.Context(), auth.SendCodeInput{
		PhoneNumber: req.PhoneNumber,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
	})
	if err != nil {
		var (
			storageErr  *auth.StorageError
			deliveryErr *auth.DeliveryError
		)
		switch {
		case errors.Is(err, auth.ErrInvalidPhone):
			respondWithError(w, http.StatusBadRequest, msgInvalidPhone)
		case errors.Is(err, auth.ErrRateLimited):
			respondWithError(w, http.StatusTooManyRequests, msgRateLimited)
		case errors.As(err, &deliveryErr):
			h.log.Error("send-code delivery failed", logger.Phone(res.PhoneNumber), zap.Int64("user_id", res.UserID), zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, msgSendFailed)
		case errors.As(err, &storageErr):
			h.log.Error("send-code storage failed", zap.String("op", storageErr.Op), zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, msgSendFailed)
		default:
			h.log.Error("send-code failed", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, msgSendFailed)
		}
		return
	}

	response := sendCodeResponse{Message: msgOTPSent, UserID: res.UserID}
	if h.devMode {
		response.DevOTP = res.Code
	}
	respondWithJSON(w, http.StatusOK, response)
}

// HandleVerifyCode handles POST /auth/phone/verify-code
func (h *AuthHandler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// the code is matched exactly as sent
	if strings.TrimSpace(req.PhoneNumber) == "" || req.OTPCode == "" {
		respondWithError(w, http.StatusBadRequest, msgBothRequired)
		return
	}

	cred, err := h.authService.VerifyCode(r.Context(), req.PhoneNumber, req.OTPCode)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidOrExpiredCode):
			respondWithError(w, http.StatusUnauthorized, msgInvalidOTP)
		case errors.Is(err, auth.ErrTooManyAttempts):
			respondWithError(w, http.StatusTooManyRequests, msgRateLimited)
		default:
			h.log.Error("verify-code failed", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, msgVerifyFailed)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, verifyCodeResponse{Message: msgOTPVerified, Token: cred.Token})
}

// HandleMe handles GET /me - returns the current user (requires valid JWT)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	respondWithJSON(w, http.StatusOK, meResponse{
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
	})
}

// decodeJSON reads at most maxBodyBytes into dst and answers the error itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return false
		}
		respondWithError(w, http.StatusBadRequest, msgInvalidRequest)
		return false
	}
	return true
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}
