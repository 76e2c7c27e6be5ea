// Package assets renders the QR code image and passport document of a
// serialized item onto local storage.
package assets

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/maisonfine/stockd/internal/apperr"
)

// Kind identifies a generated artifact
type Kind string

const (
	KindQR       Kind = "qr"
	KindPassport Kind = "passport"
)

// ItemMeta is what the passport prints about an item
type ItemMeta struct {
	ItemUID        string
	ProductName    string
	SKU            string
	VariantName    string
	BatchNumber    string
	ProductionDate *time.Time
	ExpiryDate     *time.Time
	ReceivedAt     time.Time
}

// Generator writes item assets. Paths are relative to the storage root.
type Generator interface {
	// PathFor returns where Generate will write kind for uid, without writing
	PathFor(kind Kind, uid string) (string, error)
	Generate(ctx context.Context, kind Kind, meta ItemMeta) (string, error)
	// Delete removes a generated file. Missing files are not an error.
	Delete(relPath string) error
	URL(relPath string) string
}

// FileGenerator stores assets on the local filesystem
type FileGenerator struct {
	root         string
	publicBase   string
	passportBase string
}

// NewFileGenerator creates a generator rooted at root. publicBase prefixes
// asset URLs; passportBase is the address encoded in QR codes.
func NewFileGenerator(root, publicBase, passportBase string) *FileGenerator {
	return &FileGenerator{
		root:         root,
		publicBase:   strings.TrimRight(publicBase, "/"),
		passportBase: strings.TrimRight(passportBase, "/"),
	}
}

// Root returns the storage directory
func (g *FileGenerator) Root() string { return g.root }

func (g *FileGenerator) PathFor(kind Kind, uid string) (string, error) {
	if !validUID(uid) {
		return "", apperr.New(apperr.ErrAssetGeneration, "item uid %q is not a safe file name", uid)
	}
	switch kind {
	case KindQR:
		return path.Join("qr", uid+".png"), nil
	case KindPassport:
		return path.Join("passports", uid+".pdf"), nil
	default:
		return "", apperr.New(apperr.ErrAssetGeneration, "unknown asset kind %q", kind)
	}
}

func (g *FileGenerator) Generate(ctx context.Context, kind Kind, meta ItemMeta) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Wrap(apperr.ErrAssetGeneration, err, "generate %s for %s", kind, meta.ItemUID)
	}
	rel, err := g.PathFor(kind, meta.ItemUID)
	if err != nil {
		return "", err
	}

	var data []byte
	switch kind {
	case KindQR:
		data, err = qrcode.Encode(g.PassportURL(meta.ItemUID), qrcode.Medium, 512)
	case KindPassport:
		data, err = g.passportPDF(meta)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.ErrAssetGeneration, err, "render %s for %s", kind, meta.ItemUID)
	}

	if err := writeAtomic(filepath.Join(g.root, filepath.FromSlash(rel)), data); err != nil {
		return "", apperr.Wrap(apperr.ErrAssetGeneration, err, "store %s for %s", kind, meta.ItemUID)
	}
	return rel, nil
}

func (g *FileGenerator) Delete(relPath string) error {
	if relPath == "" {
		return nil
	}
	err := os.Remove(filepath.Join(g.root, filepath.FromSlash(relPath)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (g *FileGenerator) URL(relPath string) string {
	if relPath == "" {
		return ""
	}
	return g.publicBase + "/" + relPath
}

// PassportURL is the public page a scanned QR code resolves to
func (g *FileGenerator) PassportURL(uid string) string {
	return g.passportBase + "/" + uid
}

func (g *FileGenerator) passportPDF(meta ItemMeta) ([]byte, error) {
	qrPng, err := qrcode.Encode(g.PassportURL(meta.ItemUID), qrcode.Medium, 256)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, pdf.UnicodeTranslatorFromDescriptor("")(meta.ProductName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, "Product passport", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Item", meta.ItemUID},
		{"SKU", meta.SKU},
		{"Variant", meta.VariantName},
		{"Batch", meta.BatchNumber},
		{"Produced", formatDate(meta.ProductionDate)},
		{"Best before", formatDate(meta.ExpiryDate)},
		{"Received", meta.ReceivedAt.UTC().Format("2006-01-02")},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(30, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 7, row[1], "", 1, "L", false, 0, "")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPng))
	pdf.ImageOptions("qr", 49, 130, 50, 50, false, opts, 0, "")
	pdf.SetXY(12, 182)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 5, g.PassportURL(meta.ItemUID), "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func validUID(uid string) bool {
	if uid == "" || len(uid) > 64 {
		return false
	}
	for _, r := range uid {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// writeAtomic writes through a temp file so readers never see a partial asset
func writeAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Validate reports the first unsafe uid, used before bulk operations
func Validate(uids []string) error {
	for _, uid := range uids {
		if !validUID(uid) {
			return apperr.New(apperr.ErrInvalidInput, "invalid item uid %q", uid)
		}
	}
	return nil
}

var _ Generator = (*FileGenerator)(nil)
