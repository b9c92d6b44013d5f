package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cartera-portal/cartera-portal/internal/platform/httpx"
	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// Handler exposes the account endpoints, including login and profile.
type Handler struct {
	logger  *slog.Logger
	service *Service
	tokens  *shared.TokenStore
}

// NewHandler wires the users HTTP surface.
func NewHandler(logger *slog.Logger, service *Service, tokens *shared.TokenStore) *Handler {
	return &Handler{logger: logger, service: service, tokens: tokens}
}

// MountRoutes registers the account routes on the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/registro", h.register)
	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAuth)
		r.Get("/perfil", h.profile)
		r.Post("/logout", h.logout)
	})
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAuth, httpx.RequireAdmin)
		r.Post("/crear", h.create)
		r.Get("/todos", h.list)
		r.Put("/permisos/{userID}", h.updatePermissions)
		r.Delete("/eliminar/{userID}", h.delete)
	})
}

type accountRequest struct {
	Email               string   `json:"email"`
	Nombre              string   `json:"nombre"`
	Password            string   `json:"password"`
	Rol                 string   `json:"rol"`
	VendedoresAsociados []string `json:"vendedores_asociados"`
	ClientesAsociados   []string `json:"clientes_asociados"`
}

func (req accountRequest) account() NewAccount {
	return NewAccount{
		Email:       req.Email,
		Name:        req.Nombre,
		Password:    req.Password,
		Role:        shared.Role(req.Rol),
		SellerNames: req.VendedoresAsociados,
		ClientIDs:   req.ClientesAsociados,
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Cuerpo inválido", err.Error())
		return
	}
	user, err := h.service.Register(r.Context(), req.account())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"mensaje": "Usuario registrado", "usuario": user})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Cuerpo inválido", err.Error())
		return
	}
	user, err := h.service.Create(r.Context(), req.account())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"mensaje": "Usuario creado", "usuario": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Cuerpo inválido", err.Error())
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Credenciales inválidas", "verifique email y contraseña")
			return
		}
		httpx.RespondError(w, err)
		return
	}

	token, err := h.tokens.Issue(r.Context(), user.Principal())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("user logged in", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expira_en": int64(h.tokens.TTL().Seconds()),
		"usuario":   user,
	})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"email":                p.Email,
		"nombre":               p.Name,
		"rol":                  string(p.Role),
		"vendedores_asociados": p.SellerNames,
		"clientes_asociados":   p.ClientIDs,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token := shared.BearerToken(r); token != "" {
		if err := h.tokens.Revoke(r.Context(), token); err != nil {
			h.logger.Warn("token revoke failed", slog.String("error", err.Error()))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Sesión cerrada"})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"total": len(users), "usuarios": users})
}

type permissionsRequest struct {
	Rol                 string   `json:"rol"`
	VendedoresAsociados []string `json:"vendedores_asociados"`
	ClientesAsociados   []string `json:"clientes_asociados"`
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Identificador inválido", err.Error())
		return
	}
	var req permissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Cuerpo inválido", err.Error())
		return
	}
	user, err := h.service.UpdatePermissions(r.Context(), id, shared.Role(req.Rol), req.VendedoresAsociados, req.ClientesAsociados)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mensaje": "Permisos actualizados", "usuario": user})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Identificador inválido", err.Error())
		return
	}
	caller := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), caller.UserID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Usuario eliminado"})
}

func userIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}
