// Package templates provides TemplateProvider implementations that supply
// the initial body of new articles.
package templates

import (
	"context"
	"fmt"
	"regexp"

	"github.com/tendant/simple-article/pkg/simplearticle"
)

// DefaultTemplateID is used when a request names no template.
const DefaultTemplateID = "default"

var templateIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

func resolveID(templateID string) (string, error) {
	if templateID == "" {
		return DefaultTemplateID, nil
	}
	if !templateIDPattern.MatchString(templateID) {
		return "", &simplearticle.ValidationError{Field: "template_id", Message: fmt.Sprintf("invalid template id %q", templateID)}
	}
	return templateID, nil
}

func notFound(templateID string, err error) error {
	return &simplearticle.NotFoundError{Resource: "template", ID: templateID, Err: err}
}

// Static serves bodies from an in-memory map.
type Static struct {
	bodies map[string]string
}

var _ simplearticle.TemplateProvider = (*Static)(nil)

// NewStatic copies bodies. The entry under DefaultTemplateID, if any, is
// used for requests without a template id; otherwise they get an empty body.
func NewStatic(bodies map[string]string) *Static {
	copied := make(map[string]string, len(bodies))
	for id, body := range bodies {
		copied[id] = body
	}
	return &Static{bodies: copied}
}

// DefaultBody implements simplearticle.TemplateProvider.
func (s *Static) DefaultBody(ctx context.Context, templateID string) (string, error) {
	id, err := resolveID(templateID)
	if err != nil {
		return "", err
	}
	body, ok := s.bodies[id]
	if !ok {
		if templateID == "" {
			return "", nil
		}
		return "", notFound(id, nil)
	}
	return body, nil
}
