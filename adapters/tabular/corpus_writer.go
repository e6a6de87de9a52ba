package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"glyphscore/domain/tokens"
	apperrors "glyphscore/internal/errors"

	"github.com/xuri/excelize/v2"
)

// CorpusColumns is the column order WriteCorpus emits
var CorpusColumns = []string{ColSurfaceForm, ColSection, ColFolio, ColLine, ColPositionInLine}

// WriteCorpus writes a corpus as a token table that CorpusLoader reads back.
// The format follows the extension the same way DataReader picks it.
func WriteCorpus(path string, corpus *tokens.Corpus) error {
	rows := make([][]string, len(corpus.Occurrences))
	for i, o := range corpus.Occurrences {
		rows[i] = []string{o.SurfaceForm, o.Section, o.Folio, o.Line, strconv.Itoa(o.PositionInLine)}
	}

	var err error
	if fileTypeFor(path) == FileTypeXLSX {
		err = writeXLSX(path, CorpusColumns, rows)
	} else {
		err = writeDelimited(path, fileTypeFor(path), CorpusColumns, rows)
	}
	if err != nil {
		return apperrors.IOError(fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

func writeDelimited(path, fileType string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fileType == FileTypeTSV {
		w.Comma = '\t'
	}
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func writeXLSX(path string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
