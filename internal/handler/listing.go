package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/auth"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/service"
)

const (
	// maxUploadBytes caps the whole publication form: the logo plus room
	// for the text fields.
	maxUploadBytes = service.MaxLogoBytes + 1<<20
	// maxMemory is how much of the form ParseMultipartForm keeps in memory
	// before spilling the file to disk.
	maxMemory = 1 << 20
)

// ListingHandler serves the public board, the publication form and the
// owner dashboard.
type ListingHandler struct {
	listings *service.ListingService
	tags     *service.TagService
	publish  *service.PublishService
	clicks   *service.ClickTracker
	tokens   *auth.TokenService
	pricing  service.Pricing
	views    *Views
	logger   *slog.Logger
}

func NewListingHandler(
	listings *service.ListingService,
	tags *service.TagService,
	publish *service.PublishService,
	clicks *service.ClickTracker,
	tokens *auth.TokenService,
	pricing service.Pricing,
	views *Views,
	logger *slog.Logger,
) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		tags:     tags,
		publish:  publish,
		clicks:   clicks,
		tokens:   tokens,
		pricing:  pricing,
		views:    views,
		logger:   logger,
	}
}

type indexPage struct {
	Page
	Listings []model.Listing
	Tags     []model.Tag
	Query    service.Query
}

type showPage struct {
	Page
	Listing *model.Listing
}

type dashboardPage struct {
	Page
	Listings []model.Listing
}

// publishForm is the old input echoed back after a validation failure.
// Passwords and the payment method are never echoed.
type publishForm struct {
	Title         string
	Company       string
	Location      string
	ApplyLink     string
	Content       string
	Tags          string
	IsHighlighted bool
	Name          string
	Email         string
}

type createPage struct {
	Page
	Form    publishForm
	Errors  apperror.FieldErrors
	Pricing service.Pricing
}

// HandleIndex handles GET / with the optional ?s= and ?tag= filters.
func (h *ListingHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	q := service.Query{
		Search: r.URL.Query().Get("s"),
		Tag:    r.URL.Query().Get("tag"),
	}.Normalize()

	listings, err := h.listings.Search(r.Context(), q)
	if err != nil {
		h.views.renderError(w, r, err)
		return
	}
	tags, err := h.tags.List(r.Context())
	if err != nil {
		h.views.renderError(w, r, err)
		return
	}

	h.views.render(w, http.StatusOK, "index.html", indexPage{
		Page:     h.page(r, ""),
		Listings: listings,
		Tags:     tags,
		Query:    q,
	})
}

// HandleShow handles GET /{slug}.
func (h *ListingHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())

	listing, err := h.listings.GetBySlug(r.Context(), chi.URLParam(r, "slug"), viewerID)
	if err != nil {
		h.views.renderError(w, r, err)
		return
	}

	h.views.render(w, http.StatusOK, "show.html", showPage{
		Page:    h.page(r, listing.Title),
		Listing: listing,
	})
}

// HandleApply handles GET /{slug}/apply: it records a click and redirects to
// the listing's apply link without checking that the link is reachable.
func (h *ListingHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	listing, err := h.clicks.Track(r.Context(), chi.URLParam(r, "slug"), service.ClickInfo{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	})
	if err != nil {
		h.views.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, listing.ApplyLink, http.StatusFound)
}

// HandleCreate handles GET /new.
func (h *ListingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	page := h.page(r, "Post a job")
	page.Flash = popFlash(w, r)

	h.views.render(w, http.StatusOK, "create.html", createPage{
		Page:    page,
		Pricing: h.pricing,
	})
}

// HandleStore handles POST /new and runs the publication workflow.
//
// Outcomes:
//   - success: 303 to /dashboard
//   - validation error: the form again, 422, with field errors and old input
//   - any later failure: 303 back to /new with the generic error banner
//
// When the workflow created an account for an anonymous submitter, the
// session cookie is set for it whatever the outcome.
func (h *ListingHandler) HandleStore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	// A urlencoded body still parses; it simply has no logo.
	if err := r.ParseMultipartForm(maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderForm(w, r, http.StatusRequestEntityTooLarge, publishForm{}, apperror.FieldErrors{
				"logo": "The logo may not be greater than 2048 kilobytes.",
			})
			return
		}
		h.views.renderError(w, r, apperror.ValidationFailed("form", "The form could not be read."))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	form := publishForm{
		Title:         r.PostFormValue("title"),
		Company:       r.PostFormValue("company"),
		Location:      r.PostFormValue("location"),
		ApplyLink:     r.PostFormValue("apply_link"),
		Content:       r.PostFormValue("content"),
		Tags:          r.PostFormValue("tags"),
		IsHighlighted: r.PostFormValue("is_highlighted") != "",
		Name:          r.PostFormValue("name"),
		Email:         r.PostFormValue("email"),
	}

	sub := service.Submission{
		UserID:               userID,
		Title:                form.Title,
		Company:              form.Company,
		Location:             form.Location,
		ApplyLink:            form.ApplyLink,
		Content:              form.Content,
		Tags:                 form.Tags,
		IsHighlighted:        form.IsHighlighted,
		PaymentMethodID:      r.PostFormValue("payment_method_id"),
		Name:                 form.Name,
		Email:                form.Email,
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}

	file, header, err := r.FormFile("logo")
	switch {
	case err == nil:
		defer file.Close()
		sub.Logo = &service.Logo{Filename: header.Filename, Size: header.Size, Content: file}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		h.views.renderError(w, r, err)
		return
	}

	pub, err := h.publish.Publish(r.Context(), sub)
	if pub != nil && pub.NewAccount {
		if cerr := auth.SetSessionCookie(w, h.tokens, pub.User.ID); cerr != nil {
			h.logger.Error("setting session cookie", slog.String("error", cerr.Error()))
		}
	}

	var appErr *apperror.AppError
	switch {
	case err == nil:
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	case errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr):
		h.renderForm(w, r, http.StatusUnprocessableEntity, form, appErr.Fields)
	case errors.Is(err, apperror.ErrPublish) && errors.As(err, &appErr):
		setFlash(w, appErr.Message)
		http.Redirect(w, r, "/new", http.StatusSeeOther)
	default:
		h.views.renderError(w, r, err)
	}
}

func (h *ListingHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, form publishForm, errs apperror.FieldErrors) {
	h.views.render(w, status, "create.html", createPage{
		Page:    h.page(r, "Post a job"),
		Form:    form,
		Errors:  errs,
		Pricing: h.pricing,
	})
}

// HandleDashboard handles GET /dashboard. RequireAuth guarantees a user.
func (h *ListingHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	listings, err := h.listings.Dashboard(r.Context(), userID)
	if err != nil {
		h.views.renderError(w, r, err)
		return
	}

	h.views.render(w, http.StatusOK, "dashboard.html", dashboardPage{
		Page:     h.page(r, "Dashboard"),
		Listings: listings,
	})
}

func (h *ListingHandler) page(r *http.Request, title string) Page {
	_, signedIn := auth.UserIDFromContext(r.Context())
	return Page{Title: title, SignedIn: signedIn}
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already replaced it with X-Forwarded-For / X-Real-IP when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

