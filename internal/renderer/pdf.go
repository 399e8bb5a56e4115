package renderer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
	_ "golang.org/x/image/webp"

	"reportr-backend/internal/models"
)

const (
	pageMargin      = 18.0
	figureGap       = 4.0
	figureMaxH      = 70.0
	largeFigureMaxH = 110.0
	coverImageMaxH  = 110.0
	bodyFontSize    = 11.0
	bodyLineHeight  = 5.5
	fontFamily      = "Times"
)

// PDFRenderer draws the activity report directly with fpdf. Image bytes are read from
// wherever the ImageLocator says they are.
type PDFRenderer struct {
	images ImageLocator
}

func NewPDFRenderer(images ImageLocator) *PDFRenderer {
	return &PDFRenderer{images: images}
}

func (r *PDFRenderer) Render(ctx context.Context, session *models.Session) ([]byte, error) {
	doc, err := BuildDocument(session, r.images)
	if err != nil {
		return nil, err
	}
	return renderPDF(ctx, doc)
}

type pdfWriter struct {
	pdf        *fpdf.Fpdf
	tr         func(string) string
	registered map[string]*fpdf.ImageInfoType
	pageW      float64
	pageH      float64
}

func renderPDF(ctx context.Context, doc *Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Activity Report - "+doc.BuildingName, true)
	pdf.SetAuthor(doc.CompanyName, true)
	pdf.SetCreator("reportr", true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AliasNbPages("")

	pageW, pageH := pdf.GetPageSize()
	w := &pdfWriter{
		pdf:        pdf,
		tr:         pdf.UnicodeTranslatorFromDescriptor(""),
		registered: make(map[string]*fpdf.ImageInfoType),
		pageW:      pageW,
		pageH:      pageH,
	}

	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() == 1 {
			return
		}
		pdf.SetFont(fontFamily, "I", 9)
		pdf.CellFormat(0, 6, w.tr(doc.CompanyName+" | Activity Report: "+doc.BuildingName), "B", 1, "R", false, 0, "")
		pdf.Ln(4)
	})
	pdf.SetFooterFunc(func() {
		if pdf.PageNo() == 1 {
			return
		}
		pdf.SetY(-12)
		pdf.SetFont(fontFamily, "I", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	w.cover(doc)
	pdf.AddPage()
	for _, section := range doc.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.section(section)
	}
	w.signature(doc)

	if pdf.Err() {
		return nil, fmt.Errorf("failed to lay out report: %w", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *pdfWriter) contentWidth() float64 {
	return w.pageW - 2*pageMargin
}

func (w *pdfWriter) ensureSpace(h float64) {
	if w.pdf.GetY()+h > w.pageH-pageMargin {
		w.pdf.AddPage()
	}
}

func (w *pdfWriter) cover(doc *Document) {
	pdf := w.pdf
	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 12)
	pdf.CellFormat(0, 8, w.tr(strings.ToUpper(doc.CompanyName)), "", 1, "C", false, 0, "")
	pdf.Ln(24)

	pdf.SetFont(fontFamily, "B", 28)
	pdf.MultiCell(0, 12, "ACTIVITY REPORT", "", "C", false)
	pdf.Ln(4)
	pdf.SetFont(fontFamily, "B", 16)
	pdf.MultiCell(0, 8, w.tr(strings.ToUpper(doc.BuildingName)), "", "C", false)
	pdf.SetFont(fontFamily, "", 13)
	pdf.MultiCell(0, 7, w.tr(doc.BuildingLocation), "", "C", false)
	pdf.Ln(8)

	if doc.CoverImage != nil {
		if info := w.register(doc.CoverImage.Path); info != nil {
			iw, ih := fit(info, w.contentWidth(), coverImageMaxH)
			y := pdf.GetY()
			pdf.ImageOptions(doc.CoverImage.Path, pageMargin+(w.contentWidth()-iw)/2, y, iw, ih, false, fpdf.ImageOptions{}, 0, "")
			pdf.SetY(y + ih)
		}
	} else {
		pdf.SetFont(fontFamily, "I", 11)
		pdf.MultiCell(0, 6, "No building photo uploaded.", "", "C", false)
	}

	pdf.SetY(w.pageH - pageMargin - 24)
	pdf.SetFont(fontFamily, "B", 13)
	pdf.CellFormat(0, 8, w.tr(doc.TestingMonth), "", 1, "C", false, 0, "")
}

func (w *pdfWriter) section(section Section) {
	pdf := w.pdf
	if section.Chapter {
		w.ensureSpace(20)
		pdf.SetFont(fontFamily, "B", 15)
		pdf.MultiCell(0, 8, w.tr(section.Heading), "", "L", false)
	} else {
		w.ensureSpace(16)
		pdf.SetFont(fontFamily, "B", 12.5)
		pdf.MultiCell(0, 7, w.tr(section.Heading), "", "L", false)
	}
	pdf.Ln(2)

	for _, block := range section.Blocks {
		if block.Figure != nil {
			w.figure(block.Figure)
			continue
		}
		w.paragraph(block.Paragraph)
	}
	pdf.Ln(2)
}

func (w *pdfWriter) paragraph(p Paragraph) {
	pdf := w.pdf
	pdf.SetX(pageMargin)
	for _, run := range p {
		style := ""
		if run.Bold {
			style = "B"
		}
		pdf.SetFont(fontFamily, style, bodyFontSize)
		pdf.Write(bodyLineHeight, w.tr(run.Text))
	}
	pdf.Ln(bodyLineHeight + 3)
}

type placedImage struct {
	path string
	w, h float64
}

func (w *pdfWriter) figure(f *Figure) {
	pdf := w.pdf
	maxH := figureMaxH
	if f.Large {
		maxH = largeFigureMaxH
	}
	cellW := (w.contentWidth() - figureGap) / 2
	if f.Large {
		cellW = w.contentWidth()
	}

	drawn := 0
	for _, row := range f.Rows() {
		var placed []placedImage
		rowH, rowW := 0.0, 0.0
		for _, img := range row {
			info := w.register(img.Path)
			if info == nil {
				continue
			}
			iw, ih := fit(info, cellW, maxH)
			placed = append(placed, placedImage{path: img.Path, w: iw, h: ih})
			rowH = max(rowH, ih)
			rowW += iw
		}
		if len(placed) == 0 {
			continue
		}
		rowW += figureGap * float64(len(placed)-1)

		w.ensureSpace(rowH + figureGap)
		x := pageMargin + (w.contentWidth()-rowW)/2
		y := pdf.GetY()
		for _, p := range placed {
			pdf.ImageOptions(p.path, x, y+(rowH-p.h)/2, p.w, p.h, false, fpdf.ImageOptions{}, 0, "")
			x += p.w + figureGap
		}
		pdf.SetY(y + rowH + figureGap)
		drawn += len(placed)
	}

	if drawn == 0 {
		w.ensureSpace(16)
		pdf.SetFont(fontFamily, "I", 10)
		pdf.MultiCell(0, 6, "No images uploaded for this figure.", "", "C", false)
	}
	pdf.SetFont(fontFamily, "B", 10)
	pdf.MultiCell(0, 6, w.tr(f.Caption), "", "C", false)
	pdf.Ln(3)
}

func (w *pdfWriter) signature(doc *Document) {
	pdf := w.pdf
	w.ensureSpace(40)
	pdf.Ln(10)
	pdf.SetFont(fontFamily, "", bodyFontSize)
	pdf.CellFormat(0, 6, "Prepared by:", "", 1, "L", false, 0, "")
	pdf.Ln(12)
	y := pdf.GetY()
	pdf.Line(pageMargin, y, pageMargin+70, y)
	pdf.Ln(1)
	pdf.SetFont(fontFamily, "B", bodyFontSize)
	pdf.CellFormat(0, 6, w.tr(doc.PreparedBy), "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "I", bodyFontSize)
	pdf.CellFormat(0, 6, w.tr(doc.PreparedByRole), "", 1, "L", false, 0, "")
}

// register loads an image into the document once. Images fpdf cannot embed are
// skipped, so a bad photo never fails the whole report.
func (w *pdfWriter) register(path string) *fpdf.ImageInfoType {
	if info, ok := w.registered[path]; ok {
		return info
	}
	var info *fpdf.ImageInfoType
	data, imageType, err := loadImage(path)
	if err == nil {
		info = w.pdf.RegisterImageOptionsReader(path, fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
		if w.pdf.Err() {
			w.pdf.ClearError()
			info = nil
		}
	}
	w.registered[path] = info
	return info
}

// loadImage returns bytes fpdf can embed. JPEG and PNG pass through; anything else
// the image package can decode (WebP) is re-encoded as PNG.
func loadImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	switch format {
	case "jpeg":
		return data, "JPG", nil
	case "png":
		return data, "PNG", nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("re-encode %s: %w", path, err)
	}
	return buf.Bytes(), "PNG", nil
}

// fit scales an image into a maxW x maxH box keeping its aspect ratio.
func fit(info *fpdf.ImageInfoType, maxW, maxH float64) (float64, float64) {
	if info.Width() <= 0 || info.Height() <= 0 {
		return maxW, maxH
	}
	ratio := info.Height() / info.Width()
	w, h := maxW, maxW*ratio
	if h > maxH {
		h = maxH
		w = h / ratio
	}
	return w, h
}
