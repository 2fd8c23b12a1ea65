package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/repository"
)

// TagService resolves free-text tag input to stored tags.
type TagService struct {
	repo   repository.TagRepository
	logger *slog.Logger
}

func NewTagService(repo repository.TagRepository, logger *slog.Logger) *TagService {
	return &TagService{repo: repo, logger: logger}
}

// NewTag builds the tag a raw token denotes: the slug is its identity and
// the name is the trimmed token title-cased word by word. The slug is empty
// when the token has no sluggable characters.
func NewTag(raw string) model.Tag {
	raw = strings.TrimSpace(raw)
	// A Caser is stateful, so each call gets its own.
	name := cases.Title(language.English, cases.NoLower).String(raw)
	return model.Tag{Name: name, Slug: slug.Make(raw)}
}

// ParseTags splits a comma-separated field into distinct tags. Blank tokens
// and tokens without a slug are skipped, and when two tokens share a slug
// the first spelling wins.
func ParseTags(raw string) []model.Tag {
	var tags []model.Tag
	seen := make(map[string]bool)
	for _, token := range strings.Split(raw, ",") {
		tag := NewTag(token)
		if tag.Slug == "" || seen[tag.Slug] {
			continue
		}
		seen[tag.Slug] = true
		tags = append(tags, tag)
	}
	return tags
}

// FindOrCreate returns the tag for raw, creating it on first use. Calling it
// again with any spelling that slugifies the same way returns the same tag
// with its original name.
func (s *TagService) FindOrCreate(ctx context.Context, raw string) (*model.Tag, error) {
	tag := NewTag(raw)
	if tag.Slug == "" {
		return nil, apperror.ValidationFailed("tags", "A tag must contain at least one letter or digit.")
	}

	if err := s.repo.FindOrCreate(ctx, &tag); err != nil {
		return nil, fmt.Errorf("service/tag: resolving %q: %w", tag.Slug, err)
	}
	return &tag, nil
}

// List returns every tag ordered by name.
func (s *TagService) List(ctx context.Context) ([]model.Tag, error) {
	tags, err := s.repo.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/tag: listing: %w", err)
	}
	return tags, nil
}
