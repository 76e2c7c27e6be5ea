package assets

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/maisonfine/stockd/internal/apperr"
)

// LabelConfig holds the sheet layout for label printing
type LabelConfig struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"marginTop"`
	MarginLeft float64 `json:"marginLeft"`
	GapX       float64 `json:"gapX"`
	GapY       float64 `json:"gapY"`
}

// WithDefaults fills an unset layout with a 3x7 A4 sheet
func (c LabelConfig) WithDefaults() LabelConfig {
	if c.Cols <= 0 {
		c.Cols = 3
	}
	if c.Rows <= 0 {
		c.Rows = 7
	}
	return c
}

// Label is one sticker on the sheet
type Label struct {
	ItemUID string
	Caption string // e.g. product name, printed top right
}

// LabelSheet creates a PDF with one QR sticker per label
func (g *FileGenerator) LabelSheet(cfg LabelConfig, labels []Label) ([]byte, error) {
	cfg = cfg.WithDefaults()
	if len(labels) == 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, "no labels to print")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY

	// Symmetric margins
	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)

	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)
	if labelW <= 0 || labelH <= 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, "label layout leaves no printable area")
	}

	labelsPerPage := cfg.Cols * cfg.Rows
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, label := range labels {
		if !validUID(label.ItemUID) {
			return nil, apperr.New(apperr.ErrInvalidInput, "invalid item uid %q", label.ItemUID)
		}
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols

		// Top-left of label
		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		qrPng, err := qrcode.Encode(g.PassportURL(label.ItemUID), qrcode.Low, 256)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrAssetGeneration, err, "render label for %s", label.ItemUID)
		}

		imgName := fmt.Sprintf("qr_%d", i)
		imgOptions := gofpdf.ImageOptions{
			ImageType: "PNG",
			ReadDpi:   true,
		}
		pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(qrPng))

		// QR takes 70% of the label height, centered
		qrSize := labelH * 0.7
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}
		qrX := x + (labelW-qrSize)/2
		qrY := y + (labelH-qrSize)/2 - 2

		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, y+labelH-6)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 5, label.ItemUID, "", 0, "C", false, 0, "")

		if label.Caption != "" {
			pdf.SetXY(x, y+1)
			pdf.SetFontSize(6)
			pdf.CellFormat(labelW-1, 3, tr(label.Caption), "", 0, "R", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperr.Wrap(apperr.ErrAssetGeneration, err, "write label sheet")
	}
	return buf.Bytes(), nil
}
