package app

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/KarryViber/Neolish-sub001/internal/authpw"
)

// Auth handlers for email/password authentication

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := authSvc.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if err.Error() == "email already registered" {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	emailConfigured := s.service.SMTPConfigured()
	if emailConfigured {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.corsOrigin, "/"), resp.VerificationToken)
		if err := s.service.EmailService().SendVerificationEmail(body.Email, body.DisplayName, verifyURL); err != nil {
			log.Printf("app: verification email to %s failed: %v", body.Email, err)
		}
	}

	response := map[string]any{
		"userId":  resp.UserID,
		"message": "Please check your email to verify your account",
	}
	// Dev bypass: include verification token in response when email not configured
	if !emailConfigured {
		response["devVerificationToken"] = resp.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}

	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := authSvc.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}
	if resp.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), resp.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := authSvc.VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, _ := authSvc.RequestPasswordReset(r.Context(), body.Email)

	emailConfigured := s.service.SMTPConfigured()
	if emailConfigured && token != "" {
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.corsOrigin, "/"), token)
		if err := s.service.EmailService().SendPasswordResetEmail(body.Email, "", resetURL); err != nil {
			log.Printf("app: reset email to %s failed: %v", body.Email, err)
		}
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Dev bypass: include reset token in response when email not configured and token was created
	if !emailConfigured && token != "" {
		response["devResetToken"] = token
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := authSvc.ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
