// Package enrich attaches recognized person and organization names to
// chunks. Recognition is delegated to a Recognizer collaborator; a failing
// collaborator never stops ingestion.
package enrich

import (
	"context"
	"strings"
)

// Category is a normalized entity category.
type Category string

const (
	CategoryPerson       Category = "person"
	CategoryOrganization Category = "organization"
	CategoryOther        Category = "other"
)

// Entity is one recognized name.
type Entity struct {
	Name     string
	Category Category
}

// Recognizer finds named entities in text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// NoOp recognizes nothing. It is used when no endpoint is configured.
type NoOp struct{}

// Recognize implements Recognizer.
func (NoOp) Recognize(context.Context, string) ([]Entity, error) {
	return nil, nil
}

// ParseCategory maps a recognizer label to a Category. Labels are matched
// case-insensitively and BIO prefixes ("B-", "I-") are ignored.
func ParseCategory(label string) Category {
	l := strings.ToUpper(strings.TrimSpace(label))
	l = strings.TrimPrefix(strings.TrimPrefix(l, "B-"), "I-")
	switch l {
	case "PER", "PERSON":
		return CategoryPerson
	case "ORG", "ORGANIZATION", "ORGANISATION":
		return CategoryOrganization
	default:
		return CategoryOther
	}
}
