package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/gosimple/slug"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/metrics"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/payment"
	"github.com/sakif/jobboard/internal/repository"
	"github.com/sakif/jobboard/internal/storage"
)

const (
	// Slugs are "<slugified title>-NNNN" with NNNN in [slugSuffixMin, slugSuffixMax].
	slugSuffixMin   = 1111
	slugSuffixMax   = 9999
	maxSlugBase     = 100
	maxSlugAttempts = 5
)

// Pricing holds the publication fees in the currency's minor unit.
type Pricing struct {
	BaseFee      int64
	HighlightFee int64
	Currency     string
}

// Amount is the fee for one listing.
func (p Pricing) Amount(highlighted bool) int64 {
	if highlighted {
		return p.BaseFee + p.HighlightFee
	}
	return p.BaseFee
}

// Logo is an uploaded logo file. Size is the size reported by the upload.
type Logo struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// Submission is the publication form. UserID is the authenticated submitter
// and is empty for anonymous visitors, who must then fill in the account
// fields.
type Submission struct {
	UserID string

	Title           string
	Company         string
	Location        string
	ApplyLink       string
	Content         string // Markdown
	Tags            string // comma-separated
	IsHighlighted   bool
	PaymentMethodID string
	Logo            *Logo

	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

func (s Submission) normalized() Submission {
	s.Title = strings.TrimSpace(s.Title)
	s.Company = strings.TrimSpace(s.Company)
	s.Location = strings.TrimSpace(s.Location)
	s.ApplyLink = strings.TrimSpace(s.ApplyLink)
	s.PaymentMethodID = strings.TrimSpace(s.PaymentMethodID)
	return s
}

func (s Submission) registration() Registration {
	return Registration{
		Name:                 s.Name,
		Email:                s.Email,
		Password:             s.Password,
		PasswordConfirmation: s.PasswordConfirmation,
	}
}

// Publication is the outcome of Publish. On failure it may still be
// returned, with a nil Listing, to report an account that was created for
// the submitter before the failing step.
type Publication struct {
	Listing    *model.Listing
	User       *model.User
	NewAccount bool
}

type LogoStore interface {
	Store(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, name string) error
}

type ContentRenderer interface {
	Render(src string) (string, error)
}

// PublishDeps are the collaborators of PublishService.
type PublishDeps struct {
	Accounts *AccountService
	Listings repository.ListingRepository
	Gateway  payment.Gateway
	Logos    LogoStore
	Renderer ContentRenderer
	Pricing  Pricing
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// PublishService runs the paid publication workflow:
//
//	validate → resolve/provision user → charge → store logo → render → save listing + tags
//
// Each step stops the workflow on failure. Validation failures have no side
// effects. A provisioned account survives later failures. A charge is
// refunded when any step after it fails.
type PublishService struct {
	accounts *AccountService
	listings repository.ListingRepository
	gateway  payment.Gateway
	logos    LogoStore
	renderer ContentRenderer
	pricing  Pricing
	metrics  *metrics.Metrics
	logger   *slog.Logger

	suffix func() int
}

func NewPublishService(d PublishDeps) *PublishService {
	return &PublishService{
		accounts: d.Accounts,
		listings: d.Listings,
		gateway:  d.Gateway,
		logos:    d.Logos,
		renderer: d.Renderer,
		pricing:  d.Pricing,
		metrics:  d.Metrics,
		logger:   d.Logger,
		suffix:   randomSuffix,
	}
}

func randomSuffix() int {
	return slugSuffixMin + rand.IntN(slugSuffixMax-slugSuffixMin+1)
}

// Validate checks every field of sub and reports all problems at once as a
// single apperror.ErrValidation error.
func (s *PublishService) Validate(ctx context.Context, sub Submission) error {
	sub = sub.normalized()
	errs := apperror.FieldErrors{}

	for _, f := range []struct{ name, value string }{
		{"title", sub.Title},
		{"company", sub.Company},
		{"location", sub.Location},
	} {
		switch {
		case f.value == "":
			errs[f.name] = requiredMessage(f.name)
		case tooLong(f.value):
			errs[f.name] = "The " + f.name + " may not be greater than 255 characters."
		}
	}

	switch {
	case sub.ApplyLink == "":
		errs["apply_link"] = requiredMessage("apply_link")
	case !validApplyLink(sub.ApplyLink):
		errs["apply_link"] = "The apply link must be a valid http or https URL."
	}

	if strings.TrimSpace(sub.Content) == "" {
		errs["content"] = requiredMessage("content")
	}
	if sub.PaymentMethodID == "" {
		errs["payment_method_id"] = "Please enter your card details."
	}

	switch {
	case sub.Logo == nil || sub.Logo.Content == nil:
		errs["logo"] = requiredMessage("logo")
	case sub.Logo.Size > MaxLogoBytes:
		errs["logo"] = fmt.Sprintf("The logo may not be greater than %d kilobytes.", MaxLogoBytes/1024)
	case !storage.AllowedExtension(sub.Logo.Filename):
		errs["logo"] = "The logo must be a file of type: png, jpg, jpeg, gif, webp."
	}

	if sub.UserID == "" {
		if err := s.accounts.Validate(ctx, sub.registration(), errs); err != nil {
			return fmt.Errorf("service/publish: validating account: %w", err)
		}
	}

	if err := apperror.Invalid(errs); err != nil {
		return err
	}
	return nil
}

// Publish validates sub, charges the submitter and creates the listing with
// its tags.
//
// Errors are either validation errors (apperror.ErrValidation, nothing was
// changed) or publish errors (apperror.ErrPublish, carrying the generic
// message). The returned Publication is non-nil whenever a user was
// resolved, including on failure.
func (s *PublishService) Publish(ctx context.Context, sub Submission) (*Publication, error) {
	sub = sub.normalized()
	if err := s.Validate(ctx, sub); err != nil {
		return nil, err
	}

	user, created, err := s.resolveUser(ctx, sub)
	var pub *Publication
	if user != nil {
		pub = &Publication{User: user, NewAccount: created}
	}
	if err != nil {
		return pub, err
	}

	amount := s.pricing.Amount(sub.IsHighlighted)
	charge, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		CustomerID:      user.CustomerID,
		PaymentMethodID: sub.PaymentMethodID,
		Amount:          amount,
		Currency:        s.pricing.Currency,
		Description:     "Job listing: " + sub.Title,
	})
	if err != nil {
		s.metrics.PublishFailed(metrics.StagePayment)
		s.logger.Warn("listing charge failed",
			slog.String("userID", user.ID),
			slog.Int64("amount", amount),
			slog.Bool("declined", errors.Is(err, payment.ErrDeclined)),
			slog.String("error", err.Error()),
		)
		return pub, apperror.PublishFailed(err)
	}

	listing, err := s.createListing(ctx, sub, user, charge)
	if err != nil {
		s.logger.Error("listing creation failed after charge",
			slog.String("userID", user.ID),
			slog.String("chargeID", charge.ID),
			slog.String("error", err.Error()),
		)
		s.refund(ctx, charge)
		return pub, apperror.PublishFailed(err)
	}

	s.metrics.ListingPublished(listing.IsHighlighted)
	s.logger.Info("listing published",
		slog.String("listingID", listing.ID),
		slog.String("slug", listing.Slug),
		slog.String("userID", user.ID),
		slog.String("chargeID", charge.ID),
		slog.Int64("amount", amount),
	)

	pub.Listing = listing
	return pub, nil
}

// resolveUser returns the submitting account and whether it was created by
// this call. A created account is returned even when a later part of
// provisioning fails.
func (s *PublishService) resolveUser(ctx context.Context, sub Submission) (*model.User, bool, error) {
	if sub.UserID != "" {
		user, err := s.accounts.GetUserByID(ctx, sub.UserID)
		if err != nil {
			s.metrics.PublishFailed(metrics.StageAccount)
			return nil, false, apperror.PublishFailed(err)
		}
		if err := s.accounts.EnsureCustomer(ctx, user); err != nil {
			s.metrics.PublishFailed(metrics.StageAccount)
			return user, false, apperror.PublishFailed(err)
		}
		return user, false, nil
	}

	user, err := s.accounts.Provision(ctx, sub.registration())
	if err != nil {
		if user == nil && errors.Is(err, apperror.ErrValidation) {
			return nil, false, err
		}
		s.metrics.PublishFailed(metrics.StageAccount)
		s.logger.Error("provisioning submitter failed", slog.String("error", err.Error()))
		return user, user != nil, apperror.PublishFailed(err)
	}
	return user, true, nil
}

func (s *PublishService) createListing(ctx context.Context, sub Submission, owner *model.User, charge *payment.Charge) (*model.Listing, error) {
	logoName, err := s.logos.Store(ctx, sub.Logo.Filename, sub.Logo.Content)
	if err != nil {
		s.metrics.PublishFailed(metrics.StageStorage)
		return nil, fmt.Errorf("service/publish: storing logo: %w", err)
	}

	content, err := s.renderer.Render(sub.Content)
	if err != nil {
		s.metrics.PublishFailed(metrics.StageRender)
		s.removeLogo(ctx, logoName)
		return nil, fmt.Errorf("service/publish: rendering content: %w", err)
	}

	listing := &model.Listing{
		OwnerID:       owner.ID,
		Title:         sub.Title,
		Company:       sub.Company,
		Location:      sub.Location,
		Logo:          logoName,
		ApplyLink:     sub.ApplyLink,
		Content:       content,
		IsHighlighted: sub.IsHighlighted,
		IsActive:      true,
		ChargeID:      charge.ID,
	}
	tags := ParseTags(sub.Tags)

	var lastErr error
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		listing.Slug = s.slugFor(sub.Title)

		exists, err := s.listings.SlugExists(ctx, listing.Slug)
		if err != nil {
			lastErr = err
			break
		}
		if exists {
			lastErr = apperror.Conflict("listing", listing.Slug)
			continue
		}

		err = s.listings.CreateWithTags(ctx, listing, tags)
		if err == nil {
			return listing, nil
		}
		lastErr = err
		// The unique index caught a slug taken since SlugExists.
		if !errors.Is(err, apperror.ErrConflict) {
			break
		}
	}

	s.metrics.PublishFailed(metrics.StageSave)
	s.removeLogo(ctx, logoName)
	return nil, fmt.Errorf("service/publish: saving listing: %w", lastErr)
}

// slugFor builds a candidate slug for title.
func (s *PublishService) slugFor(title string) string {
	base := slug.Make(title)
	if len(base) > maxSlugBase {
		base = strings.TrimRight(base[:maxSlugBase], "-")
	}
	if base == "" {
		base = "listing"
	}
	return fmt.Sprintf("%s-%d", base, s.suffix())
}

// refund reverses charge after a failed publication. It runs even if the
// request context has been cancelled.
func (s *PublishService) refund(ctx context.Context, charge *payment.Charge) {
	ctx = context.WithoutCancel(ctx)
	if err := s.gateway.Refund(ctx, charge.ID); err != nil {
		s.metrics.Refunded(false)
		s.logger.Error("refund failed, charge needs manual review",
			slog.String("chargeID", charge.ID),
			slog.Int64("amount", charge.Amount),
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.Refunded(true)
	s.logger.Warn("charge refunded", slog.String("chargeID", charge.ID))
}

func (s *PublishService) removeLogo(ctx context.Context, name string) {
	if err := s.logos.Remove(context.WithoutCancel(ctx), name); err != nil {
		s.logger.Warn("removing orphaned logo", slog.String("logo", name), slog.String("error", err.Error()))
	}
}
