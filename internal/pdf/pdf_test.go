// internal/pdf/pdf_test.go
package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Corphon/MoodboardPitch/internal/models"
)

func TestParseBlocks(t *testing.T) {
	src := `# TITRE : La Marée

**SÉQUENCE 1 - L'aube**

- **Durée estimée** : 30 secondes
- **Lieu** : une plage déserte

Le *vent* se lève sur la **dune**.
Les vagues reviennent.

---

### Personnages

• Léa, 30 ans
• Marc, pêcheur

| # | Valeur | Description |
|---|--------|-------------|
| 1 | PG | La plage **vide** |
| 2 | GP | Un visage |
`
	got := ParseBlocks(src)
	want := []Block{
		{Kind: BlockTitle, Text: "TITRE : La Marée"},
		{Kind: BlockSubtitle, Text: "SÉQUENCE 1 - L'aube"},
		{Kind: BlockBullet, Text: "Durée estimée : 30 secondes"},
		{Kind: BlockBullet, Text: "Lieu : une plage déserte"},
		{Kind: BlockBody, Text: "Le vent se lève sur la dune. Les vagues reviennent."},
		{Kind: BlockSpacer},
		{Kind: BlockSubtitle, Text: "Personnages"},
		{Kind: BlockBullet, Text: "Léa, 30 ans"},
		{Kind: BlockBullet, Text: "Marc, pêcheur"},
		{Kind: BlockTable, Rows: [][]string{
			{"#", "Valeur", "Description"},
			{"1", "PG", "La plage vide"},
			{"2", "GP", "Un visage"},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseBlocks mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBlocksEmpty(t *testing.T) {
	if got := ParseBlocks(""); len(got) != 0 {
		t.Errorf("ParseBlocks(\"\") = %v", got)
	}
}

func TestColumnWidthsFillAvailable(t *testing.T) {
	rows := [][]string{{"#", "Description"}, {"1", "Un long plan séquence sur la plage au lever du jour"}}
	widths := columnWidths(rows, 2, 170)
	if len(widths) != 2 {
		t.Fatalf("len = %d", len(widths))
	}
	if sum := widths[0] + widths[1]; sum < 169.99 || sum > 170.01 {
		t.Errorf("widths sum = %f, want 170", sum)
	}
	if widths[1] <= widths[0] {
		t.Errorf("description column should be wider: %v", widths)
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), 80, 120, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pageCount(out []byte) int {
	return bytes.Count(out, []byte("/Type /Page")) - bytes.Count(out, []byte("/Type /Pages"))
}

func TestRender(t *testing.T) {
	doc := Document{
		Date:      time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC),
		Pitch:     "## TITRE\n\nUne histoire de mer et de néons.\n\n- **Logline** : deux vies",
		Sequencer: "**SÉQUENCE 1 - Ouverture**\n\n- **Lieu** : port",
		Decoupage: "| # | Valeur | Mouvement | Description | Image ref | Son | Durée |\n|---|---|---|---|---|---|---|\n| 1 | PG | Fixe | Le port | port.jpg | vent | 5s |",
		Images: []models.MoodImage{
			{ID: "a", Name: "port_du_matin.jpg", Data: testPNG(t, 64, 40)},
			{ID: "b", Name: "absent.jpg"},
			{ID: "c", Name: "portrait.png", Data: testPNG(t, 30, 60)},
		},
	}
	out, err := Render(doc)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", out[:min(len(out), 16)])
	}
	// cover, three sections, image index
	if n := pageCount(out); n != 5 {
		t.Errorf("pages = %d, want 5", n)
	}
}

func TestRenderWithoutImages(t *testing.T) {
	out, err := Render(Document{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if n := pageCount(out); n != 4 {
		t.Errorf("pages = %d, want 4 (no index page)", n)
	}
}

func TestRenderNamesOnly(t *testing.T) {
	images := make([]models.MoodImage, 20)
	for i := range images {
		images[i] = models.MoodImage{Name: "une_image_au_nom_vraiment_tres_long.jpg"}
	}
	if _, err := Render(Document{Title: "Projet", Images: images}); err != nil {
		t.Fatalf("Render: %v", err)
	}
}

func TestFilename(t *testing.T) {
	got := Filename(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if got != "pitch_20260102_0304.pdf" {
		t.Errorf("Filename = %q", got)
	}
}
