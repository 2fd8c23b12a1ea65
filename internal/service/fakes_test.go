package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/auth"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/payment"
	"github.com/sakif/jobboard/internal/repository"
)

// In-memory fakes for the repository, gateway, storage and renderer
// boundaries. They follow the contracts of the real implementations closely
// enough for the workflow tests: slugs and emails are unique, tags are
// matched by slug, and listings come back newest first.

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	tags     map[string]model.Tag // by slug
	listings []*model.Listing     // insertion order
	links    map[string][]string  // listing id → tag slugs
	clicks   []model.Click
	nextID   int

	// Injected failures.
	createListingErr error
	conflictsLeft    int // CreateWithTags reports a slug conflict this many times
	setCustomerErr   error
}

var (
	_ repository.UserRepository    = (*fakeStore)(nil)
	_ repository.TagRepository     = (*fakeStore)(nil)
	_ repository.ListingRepository = (*fakeStore)(nil)
	_ repository.ClickRepository   = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*model.User),
		tags:  make(map[string]model.Tag),
		links: make(map[string][]string),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
	}
	user.ID = f.id("user")
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) SetCustomerID(_ context.Context, userID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setCustomerErr != nil {
		return f.setCustomerErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.CustomerID = customerID
	return nil
}

func (f *fakeStore) FindOrCreate(_ context.Context, tag *model.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findOrCreateLocked(tag)
	return nil
}

func (f *fakeStore) findOrCreateLocked(tag *model.Tag) {
	if existing, ok := f.tags[tag.Slug]; ok {
		*tag = existing
		return
	}
	tag.ID = f.id("tag")
	f.tags[tag.Slug] = *tag
}

func (f *fakeStore) GetTagBySlug(_ context.Context, slug string) (*model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tags[slug]
	if !ok {
		return nil, apperror.NotFound("tag", slug)
	}
	return &t, nil
}

func (f *fakeStore) ListTags(_ context.Context) ([]model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tags := make([]model.Tag, 0, len(f.tags))
	for _, t := range f.tags {
		tags = append(tags, t)
	}
	return tags, nil
}

func (f *fakeStore) CreateWithTags(_ context.Context, listing *model.Listing, tags []model.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createListingErr != nil {
		return f.createListingErr
	}
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return apperror.Conflict("listing", listing.Slug)
	}
	for _, l := range f.listings {
		if l.Slug == listing.Slug {
			return apperror.Conflict("listing", listing.Slug)
		}
	}

	listing.ID = f.id("listing")
	var attached []model.Tag
	seen := map[string]bool{}
	for i := range tags {
		f.findOrCreateLocked(&tags[i])
		if !seen[tags[i].Slug] {
			seen[tags[i].Slug] = true
			attached = append(attached, tags[i])
			f.links[listing.ID] = append(f.links[listing.ID], tags[i].Slug)
		}
	}
	listing.Tags = attached

	stored := *listing
	f.listings = append(f.listings, &stored)
	return nil
}

func (f *fakeStore) GetBySlug(_ context.Context, slug string) (*model.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listings {
		if l.Slug == slug {
			return f.readLocked(l), nil
		}
	}
	return nil, apperror.NotFound("listing", slug)
}

func (f *fakeStore) SlugExists(_ context.Context, slug string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listings {
		if l.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) List(_ context.Context, filter repository.ListingFilter) ([]model.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Listing{}
	for i := len(f.listings) - 1; i >= 0; i-- {
		l := f.readLocked(f.listings[i])
		if filter.ActiveOnly && !l.IsActive {
			continue
		}
		if filter.OwnerID != "" && l.OwnerID != filter.OwnerID {
			continue
		}
		if filter.TagSlug != "" && !l.HasTag(filter.TagSlug) {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (f *fakeStore) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listings {
		if l.ID == id {
			l.IsActive = active
			return nil
		}
	}
	return apperror.NotFound("listing", id)
}

func (f *fakeStore) readLocked(l *model.Listing) *model.Listing {
	result := *l
	result.Tags = []model.Tag{}
	for _, slug := range f.links[l.ID] {
		result.Tags = append(result.Tags, f.tags[slug])
	}
	for _, c := range f.clicks {
		if c.ListingID == l.ID {
			result.ClickCount++
		}
	}
	return &result
}

func (f *fakeStore) RecordClick(_ context.Context, click *model.Click) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	click.ID = f.id("click")
	f.clicks = append(f.clicks, *click)
	return nil
}

func (f *fakeStore) CountClicks(_ context.Context, listingID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clicks {
		if c.ListingID == listingID {
			n++
		}
	}
	return n, nil
}

// listingCount and linkCount let tests assert on persisted state.
func (f *fakeStore) listingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listings)
}

func (f *fakeStore) linkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, slugs := range f.links {
		n += len(slugs)
	}
	return n
}

func (f *fakeStore) userCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type fakeGateway struct {
	mu          sync.Mutex
	customers   []payment.Customer
	charges     []payment.ChargeRequest
	refunds     []string
	customerErr error
	chargeErr   error
	refundErr   error
}

var _ payment.Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) CreateCustomer(_ context.Context, c payment.Customer) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.customerErr != nil {
		return "", g.customerErr
	}
	g.customers = append(g.customers, c)
	return fmt.Sprintf("cus_%d", len(g.customers)), nil
}

func (g *fakeGateway) Charge(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	return &payment.Charge{ID: fmt.Sprintf("pi_%d", len(g.charges)), Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *fakeGateway) Refund(_ context.Context, chargeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, chargeID)
	return g.refundErr
}

type fakeLogos struct {
	stored   []string
	removed  []string
	storeErr error
}

func (l *fakeLogos) Store(_ context.Context, filename string, r io.Reader) (string, error) {
	if l.storeErr != nil {
		return "", l.storeErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	name := fmt.Sprintf("logo-%d.png", len(l.stored)+1)
	l.stored = append(l.stored, name)
	return name, nil
}

func (l *fakeLogos) Remove(_ context.Context, name string) error {
	l.removed = append(l.removed, name)
	return nil
}

type fakeRenderer struct {
	err error
}

func (r fakeRenderer) Render(src string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "<p>" + src + "</p>", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPasswords() *auth.PasswordService {
	return auth.NewPasswordServiceForTest(bcrypt.MinCost)
}

// publishFixture bundles a PublishService with the fakes behind it.
type publishFixture struct {
	svc      *PublishService
	accounts *AccountService
	store    *fakeStore
	gateway  *fakeGateway
	logos    *fakeLogos
}

func newPublishFixture(t *testing.T) *publishFixture {
	t.Helper()
	store := newFakeStore()
	gateway := &fakeGateway{}
	logos := &fakeLogos{}
	accounts := NewAccountService(store, testPasswords(), gateway, testLogger())

	svc := NewPublishService(PublishDeps{
		Accounts: accounts,
		Listings: store,
		Gateway:  gateway,
		Logos:    logos,
		Renderer: fakeRenderer{},
		Pricing:  Pricing{BaseFee: 4900, HighlightFee: 900, Currency: "usd"},
		Logger:   testLogger(),
	})
	return &publishFixture{svc: svc, accounts: accounts, store: store, gateway: gateway, logos: logos}
}

// registeredUser creates an account with a customer reference, as if it had
// signed up and published before.
func (f *publishFixture) registeredUser(t *testing.T, email string) *model.User {
	t.Helper()
	user := &model.User{Name: "Owner", Email: email, CustomerID: "cus_existing"}
	if err := f.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return user
}
