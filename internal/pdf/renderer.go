// internal/pdf/renderer.go
package pdf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/Corphon/MoodboardPitch/internal/imaging"
	"github.com/Corphon/MoodboardPitch/internal/models"
)

// DefaultTitle is printed on the cover when the document has no title.
const DefaultTitle = "Pitch Creatif"

const (
	margin       = 20.0
	gridColumns  = 5
	gridMax      = 15
	cellWidth    = 30.0
	thumbBox     = 25.0
	captionH     = 5.0
	thumbPixels  = 300
	bodyLineH    = 5.0
	bulletIndent = 15.0 * 0.3528 // 15 pt in mm
)

type rgb struct{ r, g, b int }

var (
	colorPrimary = rgb{0x1a, 0x1a, 0x2e}
	colorAccent  = rgb{0xe9, 0x45, 0x60}
	colorText    = rgb{0x2d, 0x2d, 0x2d}
	colorLight   = rgb{0x66, 0x66, 0x66}
	colorBorder  = rgb{0xe0, 0xe0, 0xe0}
)

// Document is everything printed in a pitch PDF.
type Document struct {
	Title     string
	Date      time.Time
	Pitch     string
	Sequencer string
	Decoupage string
	Images    []models.MoodImage
}

// Filename is the download name of a PDF generated at t.
func Filename(t time.Time) string {
	return "pitch_" + t.Format("20060102_1504") + ".pdf"
}

type renderer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// Render builds the PDF and returns its bytes.
func Render(doc Document) ([]byte, error) {
	if doc.Title == "" {
		doc.Title = DefaultTitle
	}
	if doc.Date.IsZero() {
		doc.Date = time.Now()
	}

	p := fpdf.New("P", "mm", "A4", "")
	p.SetMargins(margin, margin, margin)
	p.SetAutoPageBreak(true, margin)
	p.SetTitle(doc.Title, true)
	p.SetCreator("MoodboardPitch", true)

	r := &renderer{pdf: p, tr: p.UnicodeTranslatorFromDescriptor("")}
	p.SetHeaderFunc(r.header)
	p.SetFooterFunc(r.footer)

	r.cover(doc)
	r.section("PITCH", doc.Pitch)
	r.section("SEQUENCIER", doc.Sequencer)
	r.section("DECOUPAGE TECHNIQUE", doc.Decoupage)
	if len(doc.Images) > 0 {
		r.index(doc.Images)
	}

	var buf bytes.Buffer
	if err := p.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *renderer) header() {
	w, _ := r.pdf.GetPageSize()
	r.setDraw(colorAccent)
	r.pdf.SetLineWidth(2 * 0.3528)
	r.pdf.Line(15, 12, w-15, 12)
}

func (r *renderer) footer() {
	r.pdf.SetY(-14)
	r.font("", 9, colorLight)
	r.pdf.CellFormat(0, 8, strconv.Itoa(r.pdf.PageNo()), "", 0, "C", false, 0, "")
}

func (r *renderer) cover(doc Document) {
	r.pdf.AddPage()
	r.pdf.Ln(30)

	r.font("B", 32, colorPrimary)
	r.pdf.MultiCell(0, 14, r.tr(doc.Title), "", "C", false)
	r.pdf.Ln(5)

	r.font("", 14, colorLight)
	r.pdf.MultiCell(0, 7, doc.Date.Format("02/01/2006"), "", "C", false)
	r.pdf.Ln(15)

	if len(doc.Images) == 0 {
		return
	}
	r.subtitle("REFERENCES VISUELLES")
	r.pdf.Ln(3)
	r.thumbnailGrid(doc.Images)
}

// thumbnailGrid prints up to gridMax images in rows of gridColumns. Images
// without bytes get a placeholder tile; when none has bytes, names are listed.
func (r *renderer) thumbnailGrid(images []models.MoodImage) {
	if len(models.WithData(images)) == 0 {
		for i, img := range images {
			if i == gridMax {
				break
			}
			name := img.Name
			if name == "" {
				name = "Image"
			}
			r.bullet(truncate(name, 25))
		}
		return
	}

	if len(images) > gridMax {
		images = images[:gridMax]
	}
	pageW, _ := r.pdf.GetPageSize()
	left := margin + (pageW-2*margin-gridColumns*cellWidth)/2
	rowH := thumbBox + captionH + 3

	for start := 0; start < len(images); start += gridColumns {
		r.ensureSpace(rowH)
		y := r.pdf.GetY()
		for col := 0; col < gridColumns && start+col < len(images); col++ {
			x := left + float64(col)*cellWidth
			r.thumbnail(fmt.Sprintf("thumb_%d", start+col), images[start+col], x, y)
		}
		r.pdf.SetXY(margin, y+rowH)
	}
}

func (r *renderer) thumbnail(name string, img models.MoodImage, x, y float64) {
	var (
		data    []byte
		imgType string
		pw, ph  int
	)
	if img.HasData() {
		if thumb, w, h, err := imaging.Thumbnail(img.Data, thumbPixels, thumbPixels); err == nil {
			data, imgType, pw, ph = thumb, "JPG", w, h
		}
	}
	if data == nil {
		tile, err := imaging.Placeholder(thumbPixels, thumbPixels)
		if err != nil {
			return
		}
		data, imgType, pw, ph = tile, "PNG", thumbPixels, thumbPixels
	}

	w, h := thumbBox, thumbBox*float64(ph)/float64(pw)
	if h > thumbBox {
		h = thumbBox
		w = thumbBox * float64(pw) / float64(ph)
	}
	opts := fpdf.ImageOptions{ImageType: imgType}
	r.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	r.pdf.ImageOptions(name, x+(cellWidth-w)/2, y, w, h, false, opts, 0, "")

	r.font("", 8, colorLight)
	r.pdf.SetXY(x, y+h+1)
	r.pdf.CellFormat(cellWidth, captionH-1, r.tr(truncate(img.Name, 10)), "", 0, "C", false, 0, "")
}

func (r *renderer) section(title, body string) {
	r.pdf.AddPage()
	r.sectionTitle(title)
	r.pdf.Ln(3)

	if strings.TrimSpace(body) == "" {
		r.body("Contenu non disponible")
		return
	}
	for _, b := range ParseBlocks(body) {
		switch b.Kind {
		case BlockTitle:
			r.sectionTitle(b.Text)
		case BlockSubtitle:
			r.subtitle(b.Text)
		case BlockBullet:
			r.bullet(b.Text)
		case BlockSpacer:
			r.pdf.Ln(bodyLineH)
		case BlockTable:
			r.table(b.Rows)
		default:
			r.body(b.Text)
		}
	}
}

func (r *renderer) index(images []models.MoodImage) {
	r.pdf.AddPage()
	r.sectionTitle("INDEX DES IMAGES")
	r.pdf.Ln(3)
	for i, img := range images {
		name := img.Name
		if name == "" {
			name = "Sans nom"
		}
		r.body(fmt.Sprintf("%03d. %s", i+1, name))
	}
}

func (r *renderer) sectionTitle(s string) {
	r.pdf.Ln(6)
	r.font("B", 18, colorPrimary)
	r.pdf.MultiCell(0, 9, r.tr(s), "", "L", false)
	r.pdf.Ln(4)
}

func (r *renderer) subtitle(s string) {
	r.pdf.Ln(4)
	r.font("B", 12, colorPrimary)
	r.pdf.MultiCell(0, 6, r.tr(s), "", "L", false)
	r.pdf.Ln(2)
}

func (r *renderer) body(s string) {
	r.font("", 10, colorText)
	r.pdf.MultiCell(0, bodyLineH, r.tr(s), "", "J", false)
	r.pdf.Ln(2.5)
}

func (r *renderer) bullet(s string) {
	r.font("", 10, colorText)
	r.pdf.SetX(margin + bulletIndent)
	r.pdf.MultiCell(0, bodyLineH, r.tr("• "+s), "", "L", false)
	r.pdf.Ln(1.5)
}

// table draws rows as a bordered grid; the first row is the header.
func (r *renderer) table(rows [][]string) {
	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return
	}
	pageW, _ := r.pdf.GetPageSize()
	widths := columnWidths(rows, cols, pageW-2*margin)
	const lineH = 4.0

	r.pdf.Ln(2)
	r.setDraw(colorBorder)
	r.pdf.SetLineWidth(0.2)
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		r.font(style, 8, colorText)

		cells := make([][]string, cols)
		lines := 1
		for c := 0; c < cols; c++ {
			txt := ""
			if c < len(row) {
				txt = r.tr(row[c])
			}
			cells[c] = r.pdf.SplitText(txt, widths[c]-2)
			lines = max(lines, len(cells[c]))
		}
		rowH := float64(lines)*lineH + 2

		r.ensureSpace(rowH)
		x, y := margin, r.pdf.GetY()
		for c := 0; c < cols; c++ {
			if i == 0 {
				r.pdf.SetFillColor(245, 245, 245)
				r.pdf.Rect(x, y, widths[c], rowH, "FD")
			} else {
				r.pdf.Rect(x, y, widths[c], rowH, "D")
			}
			for l, line := range cells[c] {
				r.pdf.SetXY(x+1, y+1+float64(l)*lineH)
				r.pdf.CellFormat(widths[c]-2, lineH, line, "", 0, "L", false, 0, "")
			}
			x += widths[c]
		}
		r.pdf.SetXY(margin, y+rowH)
	}
	r.pdf.Ln(3)
}

// columnWidths shares avail between columns by their longest cell, clamped
// so narrow columns stay readable.
func columnWidths(rows [][]string, cols int, avail float64) []float64 {
	weights := make([]float64, cols)
	total := 0.0
	for c := 0; c < cols; c++ {
		longest := 3
		for _, row := range rows {
			if c < len(row) {
				longest = max(longest, len([]rune(row[c])))
			}
		}
		weights[c] = float64(min(longest, 60))
		total += weights[c]
	}
	widths := make([]float64, cols)
	for c := range weights {
		widths[c] = avail * weights[c] / total
	}
	return widths
}

// ensureSpace starts a new page when h millimetres do not fit.
func (r *renderer) ensureSpace(h float64) {
	_, pageH := r.pdf.GetPageSize()
	if r.pdf.GetY()+h > pageH-margin {
		r.pdf.AddPage()
	}
}

func (r *renderer) font(style string, size float64, c rgb) {
	r.pdf.SetFont("Helvetica", style, size)
	r.pdf.SetTextColor(c.r, c.g, c.b)
}

func (r *renderer) setDraw(c rgb) {
	r.pdf.SetDrawColor(c.r, c.g, c.b)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}
