package model

import (
	"fmt"
	"strings"
	"time"
)

// UnitKind distinguishes the two kinds of processing units.
type UnitKind string

const (
	UnitKindArticle  UnitKind = "article"
	UnitKindFragment UnitKind = "fragment"
)

// Article is a full news article as delivered by the scraper bridge.
type Article struct {
	Outlet      string `json:"outlet"`
	Country     string `json:"country"`
	OutletType  string `json:"outlet_type"`
	Headline    string `json:"headline"`
	PublishedAt string `json:"published_at"`
	BodyText    string `json:"body_text"`
	URL         string `json:"url,omitempty"`
	Author      string `json:"author,omitempty"`
}

// Validate checks the required article fields and returns a ValidationError
// listing every missing one.
func (a *Article) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Outlet) == "" {
		missing = append(missing, "outlet is required")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country is required")
	}
	if strings.TrimSpace(a.OutletType) == "" {
		missing = append(missing, "outlet type is required")
	}
	if strings.TrimSpace(a.Headline) == "" {
		missing = append(missing, "headline is required")
	}
	if strings.TrimSpace(a.PublishedAt) == "" {
		missing = append(missing, "publication timestamp is required")
	}
	if strings.TrimSpace(a.BodyText) == "" {
		missing = append(missing, "body text is required")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Fragment is one slice of a long document, produced by an upstream splitter.
// Fragments inherit the parent document's metadata and always flow past
// triage regardless of relevance.
type Fragment struct {
	DocumentID     string            `json:"document_id"`
	FragmentID     string            `json:"fragment_id"`
	Text           string            `json:"text"`
	Sequence       int               `json:"sequence"`
	TotalFragments int               `json:"total_fragments"`
	IngestedAt     string            `json:"ingested_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Validate checks the required fragment fields.
func (f *Fragment) Validate() error {
	var missing []string
	if strings.TrimSpace(f.DocumentID) == "" {
		missing = append(missing, "document id is required")
	}
	if strings.TrimSpace(f.FragmentID) == "" {
		missing = append(missing, "fragment id is required")
	}
	if strings.TrimSpace(f.Text) == "" {
		missing = append(missing, "fragment text is required")
	}
	if f.Sequence <= 0 {
		missing = append(missing, "sequence number is required")
	}
	if f.TotalFragments <= 0 {
		missing = append(missing, "total fragment count is required")
	}
	if strings.TrimSpace(f.IngestedAt) == "" {
		missing = append(missing, "ingestion timestamp is required")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// ProcessingUnit is one article or fragment owned by exactly one orchestrator
// run. Exactly one of Article/Fragment is set, matching Kind.
type ProcessingUnit struct {
	ID         string    `json:"id"`
	Kind       UnitKind  `json:"kind"`
	Article    *Article  `json:"article,omitempty"`
	Fragment   *Fragment `json:"fragment,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Text returns the raw text to be processed.
func (u *ProcessingUnit) Text() string {
	if u.Kind == UnitKindFragment && u.Fragment != nil {
		return u.Fragment.Text
	}
	if u.Article != nil {
		return u.Article.BodyText
	}
	return ""
}

// Headline returns the article headline, or a synthetic one for fragments.
func (u *ProcessingUnit) Headline() string {
	if u.Kind == UnitKindFragment && u.Fragment != nil {
		return fmt.Sprintf("document %s fragment %d/%d",
			u.Fragment.DocumentID, u.Fragment.Sequence, u.Fragment.TotalFragments)
	}
	if u.Article != nil {
		return u.Article.Headline
	}
	return ""
}

// Source returns the originating outlet or parent document identifier.
func (u *ProcessingUnit) Source() string {
	if u.Kind == UnitKindFragment && u.Fragment != nil {
		if src, ok := u.Fragment.Metadata["outlet"]; ok && src != "" {
			return src
		}
		return u.Fragment.DocumentID
	}
	if u.Article != nil {
		return u.Article.Outlet
	}
	return ""
}

// Country returns the unit's country of origin, when known.
func (u *ProcessingUnit) Country() string {
	if u.Kind == UnitKindFragment && u.Fragment != nil {
		return u.Fragment.Metadata["country"]
	}
	if u.Article != nil {
		return u.Article.Country
	}
	return ""
}

// Validate dispatches to the validation of the underlying payload.
func (u *ProcessingUnit) Validate() error {
	switch u.Kind {
	case UnitKindArticle:
		if u.Article == nil {
			return &ValidationError{Fields: []string{"article payload is required"}}
		}
		return u.Article.Validate()
	case UnitKindFragment:
		if u.Fragment == nil {
			return &ValidationError{Fields: []string{"fragmento payload is required"}}
		}
		return u.Fragment.Validate()
	default:
		return &ValidationError{Fields: []string{fmt.Sprintf("unknown unit kind %q", u.Kind)}}
	}
}
