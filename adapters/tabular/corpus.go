package tabular

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"glyphscore/domain/core"
	"glyphscore/domain/tokens"
	"glyphscore/internal"
	"glyphscore/ports"

	"golang.org/x/text/unicode/norm"
)

// Token table columns
const (
	ColSurfaceForm    = "surface_form"
	ColSection        = "section"
	ColFolio          = "folio"
	ColLine           = "line"
	ColPositionInLine = "position_in_line"
)

// RequiredTokenColumns must be present in every token table
var RequiredTokenColumns = []string{ColSurfaceForm, ColSection}

// nullMarkers are cell values read as an unknown section
var nullMarkers = map[string]bool{"na": true, "n/a": true, "null": true, "none": true, "-": true}

// CorpusLoader loads a token-occurrence table
type CorpusLoader struct {
	path   string
	logger *internal.Logger
}

var _ ports.CorpusSource = (*CorpusLoader)(nil)

// NewCorpusLoader creates a loader for one token file
func NewCorpusLoader(path string, logger *internal.Logger) *CorpusLoader {
	return &CorpusLoader{path: path, logger: logger.With("corpus")}
}

// LoadCorpus reads the whole table; scoring starts only after this returns
func (l *CorpusLoader) LoadCorpus(ctx context.Context) (*tokens.Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := NewDataReader(l.path, l.logger).ReadData()
	if err != nil {
		return nil, err
	}
	corpus, skipped, err := ParseCorpusTable(table, strings.TrimSuffix(filepath.Base(l.path), filepath.Ext(l.path)))
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		l.logger.Warn("%s: skipped %d rows with an empty surface_form", l.path, skipped)
	}
	l.logger.Info("loaded %d occurrences (%d sections) from %s", corpus.Len(), len(corpus.Sections()), l.path)
	return corpus, nil
}

// ParseCorpusTable converts table rows into a corpus. Surface forms are
// NFC-normalized so composed and decomposed encodings of a glyph match.
// It returns the number of rows skipped for an empty surface form.
func ParseCorpusTable(table *Table, name string) (*tokens.Corpus, int, error) {
	if err := table.Require(RequiredTokenColumns...); err != nil {
		return nil, 0, err
	}

	corpus := &tokens.Corpus{
		Name:     name,
		HasFolio: table.Has(ColFolio),
		HasLine:  table.Has(ColLine),
	}
	hasPosition := table.Has(ColPositionInLine)
	corpus.Occurrences = make([]tokens.Occurrence, 0, len(table.Rows))

	skipped := 0
	for i, row := range table.Rows {
		form := norm.NFC.String(row[ColSurfaceForm])
		if form == "" {
			skipped++
			continue
		}
		o := tokens.Occurrence{
			SurfaceForm: form,
			Section:     normalizeSection(row[ColSection]),
			Folio:       row[ColFolio],
			Line:        row[ColLine],
		}
		if hasPosition && row[ColPositionInLine] != "" {
			pos, err := strconv.Atoi(row[ColPositionInLine])
			if err != nil {
				return nil, 0, core.NewConfigError(ColPositionInLine, fmt.Sprintf("%s line %d: %v", table.Source, i+2, err))
			}
			o.PositionInLine = pos
		}
		corpus.Occurrences = append(corpus.Occurrences, o)
	}
	return corpus, skipped, nil
}

func normalizeSection(s string) string {
	if nullMarkers[strings.ToLower(s)] {
		return ""
	}
	return norm.NFC.String(s)
}
