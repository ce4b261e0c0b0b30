package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var ErrNoTitles = errors.New("no titles to import")

// TitleResolver is the encyclopedia side of a title import.
type TitleResolver interface {
	FindSection(ctx context.Context, page, heading string) (string, error)
	SectionLinks(ctx context.Context, page, section string) ([]string, error)
	ResolveIdentifiers(ctx context.Context, titles []string) (map[string]string, error)
}

// TitleImportRequest names either explicit titles or a page section whose
// article links are imported.
type TitleImportRequest struct {
	Page    string
	Section string
	Titles  []string
}

type TitleImportResult struct {
	Titles        int         `json:"titles"`
	Resolved      int         `json:"resolved"`
	Unresolved    []string    `json:"unresolved,omitempty"`
	Fetched       int         `json:"fetched"`
	FailedBatches int         `json:"failed_batches"`
	Staged        StageResult `json:"staged"`
}

// TitleImporter stages the Wikidata items behind a list of Wikipedia titles.
type TitleImporter struct {
	resolver TitleResolver
	importer *Importer
	logger   zerolog.Logger
}

func NewTitleImporter(resolver TitleResolver, importer *Importer, logger zerolog.Logger) *TitleImporter {
	return &TitleImporter{
		resolver: resolver,
		importer: importer,
		logger:   logger.With().Str("component", "title_importer").Logger(),
	}
}

func (t *TitleImporter) Import(ctx context.Context, req TitleImportRequest) (TitleImportResult, error) {
	var result TitleImportResult

	titles, err := t.titles(ctx, req)
	if err != nil {
		return result, err
	}
	if len(titles) == 0 {
		return result, ErrNoTitles
	}
	result.Titles = len(titles)

	resolved, err := t.resolver.ResolveIdentifiers(ctx, titles)
	if err != nil {
		return result, fmt.Errorf("resolve titles: %w", err)
	}

	identifiers := make([]string, 0, len(titles))
	for _, title := range titles {
		if id := resolved[title]; id != "" {
			identifiers = append(identifiers, id)
			continue
		}
		result.Unresolved = append(result.Unresolved, title)
	}
	result.Resolved = len(identifiers)

	fetched, err := t.importer.FetchByIdentifiers(ctx, identifiers)
	if err != nil {
		return result, err
	}
	result.Fetched = len(fetched.Records)
	result.FailedBatches = fetched.FailedBatches

	staged, err := t.importer.StageRecords(ctx, fetched.Records)
	if err != nil {
		return result, err
	}
	result.Staged = staged

	t.logger.Info().
		Str("page", req.Page).
		Str("section", req.Section).
		Int("titles", result.Titles).
		Int("resolved", result.Resolved).
		Int("fetched", result.Fetched).
		Int("inserted", staged.Inserted).
		Msg("title import finished")
	return result, nil
}

func (t *TitleImporter) titles(ctx context.Context, req TitleImportRequest) ([]string, error) {
	if len(req.Titles) > 0 {
		seen := make(map[string]bool, len(req.Titles))
		out := make([]string, 0, len(req.Titles))
		for _, title := range req.Titles {
			title = strings.TrimSpace(title)
			if title == "" || seen[title] {
				continue
			}
			seen[title] = true
			out = append(out, title)
		}
		return out, nil
	}

	if strings.TrimSpace(req.Page) == "" || strings.TrimSpace(req.Section) == "" {
		return nil, ErrNoTitles
	}
	index, err := t.resolver.FindSection(ctx, req.Page, req.Section)
	if err != nil {
		return nil, fmt.Errorf("find section: %w", err)
	}
	links, err := t.resolver.SectionLinks(ctx, req.Page, index)
	if err != nil {
		return nil, fmt.Errorf("section links: %w", err)
	}
	return links, nil
}
