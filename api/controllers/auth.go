package controllers

import (
	"net/http"
	"time"

	"github.com/inkwell-labs/inkwell-backend/api/responses"
	"github.com/inkwell-labs/inkwell-backend/api/validators"
	"github.com/inkwell-labs/inkwell-backend/internal/users"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"omitempty,max=120"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	AccessToken string      `json:"access_token"`
	User        userPayload `json:"user"`
}

type userPayload struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// AuthRegister creates an account and returns a fresh access token.
func AuthRegister(svc *users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body registerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), users.RegisterInput{
			Email:       body.Email,
			Password:    body.Password,
			DisplayName: body.DisplayName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toAuthResponse(result))
	}
}

// AuthLogin verifies credentials and returns an access token.
func AuthLogin(svc *users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Authenticate(r.Context(), body.Email, body.Password)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toAuthResponse(result))
	}
}

func toAuthResponse(result *users.AuthResult) authResponse {
	return authResponse{
		AccessToken: result.AccessToken,
		User: userPayload{
			ID:          result.User.ID.String(),
			Email:       result.User.Email,
			DisplayName: result.User.DisplayName,
			LastLoginAt: result.User.LastLoginAt,
		},
	}
}
