package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/server/services"
)

// maxJSONBody bounds account and auth request bodies.
const maxJSONBody = 64 << 10

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidRequest, err)
	}
	return nil
}

type statusResponse struct {
	UserName      string `json:"username"`
	Email         string `json:"email"`
	TotalStorage  int64  `json:"total_storage"`
	UsedStorage   int64  `json:"used_storage"`
	PatreonMember bool   `json:"patreon_member"`
	PatreonLinked bool   `json:"patreon_linked"`
}

func statusResponseOf(s *services.Status) statusResponse {
	return statusResponse{
		UserName:      s.UserName,
		Email:         s.Email,
		TotalStorage:  s.TotalStorage,
		UsedStorage:   s.UsedStorage,
		PatreonMember: s.PatreonMember,
		PatreonLinked: s.PatreonLinked,
	}
}

// userStatus handles GET /user.
func (h *Handler) userStatus(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		h.writeError(w, r, common.ErrLoggedOut)
		return
	}

	st, err := h.users.Status(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponseOf(st))
}

type registerRequest struct {
	Email           string  `json:"email"`
	UserName        string  `json:"username"`
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirm_password"`
}

// register handles PUT /user.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Password == nil || req.ConfirmPassword == nil {
		h.writeError(w, r, common.ErrInvalidRequest)
		return
	}

	err := h.users.Register(r.Context(), services.RegisterRequest{
		Email:           req.Email,
		UserName:        req.UserName,
		Password:        *req.Password,
		ConfirmPassword: *req.ConfirmPassword,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeResult(w, "Successfully created new user")
}

type linkPatreonRequest struct {
	Code string `json:"code"`
}

// linkPatreon handles POST /user/patreon with the OAuth code Patreon
// redirected the client back with.
func (h *Handler) linkPatreon(w http.ResponseWriter, r *http.Request) {
	var req linkPatreonRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	st, err := h.users.LinkPatreon(r.Context(), CurrentUser(r.Context()), req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponseOf(st))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Result      string `json:"result"`
	AccessToken string `json:"access_token"`
}

// login handles POST /auth/login.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Result: "Login successful", AccessToken: token})
}

// authStatus handles GET /auth/status.
func (h *Handler) authStatus(w http.ResponseWriter, r *http.Request) {
	if CurrentUser(r.Context()) == nil {
		writeResult(w, "logged_out")
		return
	}
	writeResult(w, "logged_in")
}

// logout handles POST /auth/logout. Tokens are stateless, so the client
// forgetting its token is the logout.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	writeResult(w, "Logout successful")
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// changePassword handles PUT /auth/password.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.users.ChangePassword(r.Context(), CurrentUser(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeResult(w, "Password changed successfully")
}

// verifyEmail handles POST /auth/verify/{code}.
func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Verify(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeResult(w, "Email verified successfully")
}
