package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/auth"
	"github.com/sakif/jobboard/internal/service"
)

// AuthHandler handles sign-in, registration and sign-out. Sessions are a
// signed JWT in an HttpOnly cookie, issued by auth.SetSessionCookie.
type AuthHandler struct {
	accounts *service.AccountService
	tokens   *auth.TokenService
	views    *Views
	logger   *slog.Logger
}

func NewAuthHandler(accounts *service.AccountService, tokens *auth.TokenService, views *Views, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		views:    views,
		logger:   logger,
	}
}

type loginPage struct {
	Page
	Next  string
	Email string
	Error string
}

type registerPage struct {
	Page
	Name   string
	Email  string
	Errors apperror.FieldErrors
}

// HandleLoginForm handles GET /login.
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.views.render(w, http.StatusOK, "login.html", loginPage{
		Page: Page{Title: "Log in"},
		Next: safeNext(r.URL.Query().Get("next")),
	})
}

// HandleLogin handles POST /login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	next := safeNext(r.PostFormValue("next"))

	user, err := h.accounts.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		var appErr *apperror.AppError
		if errors.Is(err, apperror.ErrUnauthorized) && errors.As(err, &appErr) {
			h.views.render(w, http.StatusUnprocessableEntity, "login.html", loginPage{
				Page:  Page{Title: "Log in"},
				Next:  next,
				Email: email,
				Error: appErr.Message,
			})
			return
		}
		h.views.renderError(w, r, err)
		return
	}

	if err := auth.SetSessionCookie(w, h.tokens, user.ID); err != nil {
		h.views.renderError(w, r, err)
		return
	}

	h.logger.Info("user logged in", slog.String("userID", user.ID))
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// HandleRegisterForm handles GET /register.
func (h *AuthHandler) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.views.render(w, http.StatusOK, "register.html", registerPage{
		Page: Page{Title: "Register"},
	})
}

// HandleRegister handles POST /register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	reg := service.Registration{
		Name:                 r.PostFormValue("name"),
		Email:                r.PostFormValue("email"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}

	user, err := h.accounts.Register(r.Context(), reg)
	if err != nil {
		var appErr *apperror.AppError
		if errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr) {
			h.views.render(w, http.StatusUnprocessableEntity, "register.html", registerPage{
				Page:   Page{Title: "Register"},
				Name:   reg.Name,
				Email:  reg.Email,
				Errors: appErr.Fields,
			})
			return
		}
		h.views.renderError(w, r, err)
		return
	}

	if err := auth.SetSessionCookie(w, h.tokens, user.ID); err != nil {
		h.views.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLogout handles POST /logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// safeNext only allows local paths as a post-login target, so ?next= can't
// be used as an open redirect.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}
