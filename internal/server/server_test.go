package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/auth"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/payment"
	"github.com/sakif/jobboard/internal/repository"
	"github.com/sakif/jobboard/internal/server"
	"github.com/sakif/jobboard/internal/service"
)

// =========================================================================
// HELPERS
// =========================================================================

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.New(server.Config{
		Port:       0,
		DBPath:     ":memory:",
		LogoDir:    t.TempDir(),
		JWTSecret:  "test-secret-0123456789",
		SessionTTL: time.Hour,
		Pricing:    service.Pricing{BaseFee: 4900, HighlightFee: 900, Currency: "usd"},
	}, server.Deps{
		Gateway:   declineAware{},
		Passwords: auth.NewPasswordServiceForTest(bcrypt.MinCost),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func do(t *testing.T, srv *server.Server, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// listingForm returns the fields of a valid submission from a signed-in
// user; callers add or override fields as needed.
func listingForm(title string) map[string]string {
	return map[string]string{
		"title":             title,
		"company":           "Acme",
		"location":          "Remote",
		"apply_link":        "https://acme.example/jobs/1",
		"content":           "We are **hiring**.",
		"tags":              "Go, Backend",
		"payment_method_id": "pm_card_visa",
	}
}

func anonymousForm(title, email string) map[string]string {
	f := listingForm(title)
	f["name"] = "Ada"
	f["email"] = email
	f["password"] = "secret1"
	f["password_confirmation"] = "secret1"
	return f
}

// publishRequest builds the multipart POST /new. A nil logo omits the file
// part.
func publishRequest(t *testing.T, fields map[string]string, logo []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if logo != nil {
		part, err := mw.CreateFormFile("logo", "logo.png")
		require.NoError(t, err)
		_, err = part.Write(logo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/new", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nnot really an image")

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// register signs a new account up through POST /register and returns its
// session cookie.
func register(t *testing.T, srv *server.Server, email string) *http.Cookie {
	t.Helper()
	rec := do(t, srv, postForm("/register", url.Values{
		"name":                  {"Grace"},
		"email":                 {email},
		"password":              {"secret1"},
		"password_confirmation": {"secret1"},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	session := cookieNamed(rec, auth.CookieName)
	require.NotNil(t, session)
	return session
}

// publish posts a listing as the session's user and returns it.
func publish(t *testing.T, srv *server.Server, session *http.Cookie, fields map[string]string) model.Listing {
	t.Helper()
	rec := do(t, srv, publishRequest(t, fields, pngBytes), session)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))

	listings, err := srv.DB().List(context.Background(), repository.ListingFilter{})
	require.NoError(t, err)
	for _, l := range listings {
		if l.Title == fields["title"] {
			return l
		}
	}
	t.Fatalf("listing %q was not stored", fields["title"])
	return model.Listing{}
}

// failingCustomerEmail is the one address declineAware refuses to register
// as a customer.
const failingCustomerEmail = "broken@example.com"

// declineAware is the offline gateway, which already declines Stripe's test
// decline cards, plus a customer registration failure for one address.
type declineAware struct{ payment.OfflineGateway }

func (g declineAware) CreateCustomer(ctx context.Context, c payment.Customer) (string, error) {
	if c.Email == failingCustomerEmail {
		return "", errors.New("provider unavailable")
	}
	return g.OfflineGateway.CreateCustomer(ctx, c)
}

// =========================================================================
// PUBLICATION
// =========================================================================

func TestPublish_AnonymousSubmitterGetsAccountAndSession(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, publishRequest(t, anonymousForm("Senior Go Engineer", "ada@example.com"), pngBytes))

	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	session := cookieNamed(rec, auth.CookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	user, err := srv.DB().GetUserByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, user.CustomerID)

	listings, err := srv.DB().List(context.Background(), repository.ListingFilter{OwnerID: user.ID})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	l := listings[0]
	assert.Regexp(t, `^senior-go-engineer-[1-9]\d{3}$`, l.Slug)
	assert.True(t, l.IsActive)
	assert.NotEmpty(t, l.ChargeID)
	assert.Contains(t, l.Content, "<strong>hiring</strong>")
	require.Len(t, l.Tags, 2)
	assert.Equal(t, "backend", l.Tags[0].Slug)
	assert.Equal(t, "go", l.Tags[1].Slug)

	// The new session opens the dashboard.
	dash := do(t, srv, httptest.NewRequest(http.MethodGet, "/dashboard", nil), session)
	assert.Equal(t, http.StatusOK, dash.Code)
	assert.Contains(t, dash.Body.String(), "Senior Go Engineer")

	// The stored logo is served.
	logo := do(t, srv, httptest.NewRequest(http.MethodGet, "/storage/"+l.Logo, nil))
	assert.Equal(t, http.StatusOK, logo.Code)
	assert.Equal(t, pngBytes, logo.Body.Bytes())
}

func TestPublish_ValidationErrorRerendersForm(t *testing.T) {
	srv := newTestServer(t)

	fields := anonymousForm("", "ada@example.com")
	fields["company"] = "Initech"
	fields["apply_link"] = "javascript:alert(1)"

	rec := do(t, srv, publishRequest(t, fields, nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "The title field is required.")
	assert.Contains(t, body, "The logo field is required.")
	assert.Contains(t, body, "The apply link must be a valid http or https URL.")
	assert.Contains(t, body, `value="Initech"`, "old input is echoed")
	assert.NotContains(t, body, "secret1", "passwords are never echoed")
	assert.Nil(t, cookieNamed(rec, auth.CookieName))

	_, err := srv.DB().GetUserByEmail(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound, "validation failures create nothing")
}

func TestPublish_DeclinedChargeFlashesAndKeepsAccount(t *testing.T) {
	srv := newTestServer(t)

	fields := anonymousForm("Declined Job", "ada@example.com")
	fields["payment_method_id"] = "pm_card_chargeDeclined"

	rec := do(t, srv, publishRequest(t, fields, pngBytes))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/new", rec.Header().Get("Location"))
	assert.NotNil(t, cookieNamed(rec, auth.CookieName), "the created account is signed in")
	flash := cookieNamed(rec, "flash")
	require.NotNil(t, flash)

	_, err := srv.DB().GetUserByEmail(context.Background(), "ada@example.com")
	assert.NoError(t, err, "the account survives the failed charge")

	listings, err := srv.DB().List(context.Background(), repository.ListingFilter{})
	require.NoError(t, err)
	assert.Empty(t, listings)

	// The form shows the banner once.
	form := do(t, srv, httptest.NewRequest(http.MethodGet, "/new", nil), flash)
	assert.Equal(t, http.StatusOK, form.Code)
	assert.Contains(t, form.Body.String(), apperror.PublishFailedMessage)
	cleared := cookieNamed(form, "flash")
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestPublish_CustomerFailureStillSignsInNewAccount(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, publishRequest(t, anonymousForm("No Customer", failingCustomerEmail), pngBytes))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/new", rec.Header().Get("Location"))
	assert.NotNil(t, cookieNamed(rec, auth.CookieName))

	user, err := srv.DB().GetUserByEmail(context.Background(), failingCustomerEmail)
	require.NoError(t, err)
	assert.Empty(t, user.CustomerID)
}

func TestPublish_SignedInUserSkipsAccountFields(t *testing.T) {
	srv := newTestServer(t)
	session := register(t, srv, "grace@example.com")

	fields := listingForm("Highlighted Role")
	fields["is_highlighted"] = "1"
	l := publish(t, srv, session, fields)

	assert.True(t, l.IsHighlighted)

	metrics := do(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), `jobboard_listings_published_total{highlighted="true"} 1`)
}

func TestPublish_RejectsOversizedUpload(t *testing.T) {
	srv := newTestServer(t)
	session := register(t, srv, "grace@example.com")

	big := bytes.Repeat([]byte{0}, service.MaxLogoBytes+2<<20)
	rec := do(t, srv, publishRequest(t, listingForm("Too Big"), big), session)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "The logo may not be greater than 2048 kilobytes.")
}

// =========================================================================
// BROWSING
// =========================================================================

func TestIndex_FiltersBySearchAndTag(t *testing.T) {
	srv := newTestServer(t)
	session := register(t, srv, "grace@example.com")

	goJob := listingForm("Gopher Wanted")
	goJob["tags"] = "Go"
	publish(t, srv, session, goJob)

	rustJob := listingForm("Rustacean Wanted")
	rustJob["tags"] = "Rust"
	rustJob["location"] = "Berlin"
	publish(t, srv, session, rustJob)

	tests := []struct {
		name    string
		query   string
		want    []string
		notWant []string
	}{
		{name: "no filter", query: "/", want: []string{"Gopher Wanted", "Rustacean Wanted"}},
		{name: "tag", query: "/?tag=go", want: []string{"Gopher Wanted"}, notWant: []string{"Rustacean Wanted"}},
		{name: "search location", query: "/?s=berlin", want: []string{"Rustacean Wanted"}, notWant: []string{"Gopher Wanted"}},
		{name: "search and tag", query: "/?s=berlin&tag=go", notWant: []string{"Gopher Wanted", "Rustacean Wanted"}},
		{name: "blank filters", query: "/?s=+&tag=", want: []string{"Gopher Wanted", "Rustacean Wanted"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, httptest.NewRequest(http.MethodGet, tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code)
			for _, s := range tt.want {
				assert.Contains(t, rec.Body.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, rec.Body.String(), s)
			}
		})
	}
}

func TestShow_InactiveListingOnlyVisibleToOwner(t *testing.T) {
	srv := newTestServer(t)
	owner := register(t, srv, "grace@example.com")
	other := register(t, srv, "linus@example.com")
	l := publish(t, srv, owner, listingForm("Paused Role"))

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/"+l.Slug, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<strong>hiring</strong>")

	require.NoError(t, srv.DB().SetActive(context.Background(), l.ID, false))

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/"+l.Slug, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/"+l.Slug, nil), other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/"+l.Slug, nil), owner)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no longer active")

	index := do(t, srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotContains(t, index.Body.String(), "Paused Role")
}

func TestShow_UnknownSlug(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/no-such-job-1234", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApply_RecordsClickAndRedirects(t *testing.T) {
	srv := newTestServer(t)
	session := register(t, srv, "grace@example.com")
	l := publish(t, srv, session, listingForm("Click Me"))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/"+l.Slug+"/apply", nil)
		req.Header.Set("User-Agent", "test-agent")
		rec := do(t, srv, req)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://acme.example/jobs/1", rec.Header().Get("Location"))
	}

	n, err := srv.DB().CountClicks(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dash := do(t, srv, httptest.NewRequest(http.MethodGet, "/dashboard", nil), session)
	assert.Contains(t, dash.Body.String(), "<strong>2</strong> clicks")

	missing := do(t, srv, httptest.NewRequest(http.MethodGet, "/missing-1234/apply", nil))
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

// =========================================================================
// AUTH
// =========================================================================

func TestDashboard_RedirectsAnonymousToLogin(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fdashboard", rec.Header().Get("Location"))
}

func TestAuth_LoginAndLogout(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "grace@example.com")

	t.Run("wrong password", func(t *testing.T) {
		rec := do(t, srv, postForm("/login", url.Values{"email": {"grace@example.com"}, "password": {"nope!"}}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), `value="grace@example.com"`)
		assert.Nil(t, cookieNamed(rec, auth.CookieName))
	})

	t.Run("unknown email", func(t *testing.T) {
		rec := do(t, srv, postForm("/login", url.Values{"email": {"nobody@example.com"}, "password": {"secret1"}}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("next is honoured", func(t *testing.T) {
		rec := do(t, srv, postForm("/login", url.Values{
			"email": {"grace@example.com"}, "password": {"secret1"}, "next": {"/new"},
		}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/new", rec.Header().Get("Location"))
		assert.NotNil(t, cookieNamed(rec, auth.CookieName))
	})

	t.Run("external next is ignored", func(t *testing.T) {
		rec := do(t, srv, postForm("/login", url.Values{
			"email": {"grace@example.com"}, "password": {"secret1"}, "next": {"//evil.example"},
		}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})

	t.Run("logout clears the session", func(t *testing.T) {
		rec := do(t, srv, postForm("/logout", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		c := cookieNamed(rec, auth.CookieName)
		require.NotNil(t, c)
		assert.Less(t, c.MaxAge, 0)
	})
}

func TestAuth_RegisterValidation(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "grace@example.com")

	rec := do(t, srv, postForm("/register", url.Values{
		"name":                  {"Grace Again"},
		"email":                 {"grace@example.com"},
		"password":              {"abc"},
		"password_confirmation": {"abd"},
	}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="Grace Again"`)
	assert.Nil(t, cookieNamed(rec, auth.CookieName))
}

// =========================================================================
// INFRASTRUCTURE ROUTES
// =========================================================================

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStaticAndStorage(t *testing.T) {
	srv := newTestServer(t)

	css := do(t, srv, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	assert.Equal(t, http.StatusOK, css.Code)

	listing := do(t, srv, httptest.NewRequest(http.MethodGet, "/storage/", nil))
	assert.Equal(t, http.StatusNotFound, listing.Code, "no directory index")
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, httptest.NewRequest(http.MethodGet, "/no-such-job-1234", nil))
	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/{slug}"`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNew_RequiresGateway(t *testing.T) {
	_, err := server.New(server.Config{DBPath: ":memory:"}, server.Deps{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
