package webapi

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/umputun/tl-spam/lib/spamcheck"
	"github.com/umputun/tl-spam/lib/thread"
)

// postRequest is a post as sent by the extractor. Content and description are pointers,
// absent values are rejected while empty strings are valid.
type postRequest struct {
	ID       string  `json:"id"`
	Language string  `json:"language"`
	Content  *string `json:"content"`
	Author   struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		ScreenName  string  `json:"screen_name"`
		Description *string `json:"description"`
		Badge       string  `json:"badge"`
	} `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

type viewRequest struct {
	ID        string `json:"id"`
	Permalink bool   `json:"permalink"`
}

func (v viewRequest) toView() thread.View {
	return thread.View{ID: v.ID, Permalink: v.Permalink}
}

// toPost converts the request to a post, reporting all missing fields together
func (p postRequest) toPost() (spamcheck.Post, error) {
	errs := new(multierror.Error)
	if p.ID == "" {
		errs = multierror.Append(errs, &spamcheck.FieldError{Field: "id"})
	}
	if p.Author.ID == "" {
		errs = multierror.Append(errs, &spamcheck.FieldError{Field: "author.id"})
	}
	if p.Content == nil {
		errs = multierror.Append(errs, &spamcheck.FieldError{Field: "content"})
	}
	if p.Author.Description == nil {
		errs = multierror.Append(errs, &spamcheck.FieldError{Field: "author.description"})
	}
	if err := errs.ErrorOrNil(); err != nil {
		return spamcheck.Post{}, err
	}

	return spamcheck.Post{
		ID:        p.ID,
		Language:  p.Language,
		Content:   *p.Content,
		CreatedAt: p.CreatedAt,
		Author: spamcheck.Author{
			ID:          p.Author.ID,
			Name:        p.Author.Name,
			ScreenName:  p.Author.ScreenName,
			Description: *p.Author.Description,
			Badge:       spamcheck.ParseBadge(p.Author.Badge),
		},
	}, nil
}

func toPosts(reqs []postRequest) ([]spamcheck.Post, error) {
	res := make([]spamcheck.Post, 0, len(reqs))
	errs := new(multierror.Error)
	for i, r := range reqs {
		p, err := r.toPost()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("post %d: %w", i, err))
			continue
		}
		res = append(res, p)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return res, nil
}
