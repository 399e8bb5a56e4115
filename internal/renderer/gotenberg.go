package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reportr-backend/internal/models"
)

const convertHTMLPath = "/forms/chromium/convert/html"

// GotenbergRenderer renders the report as HTML and has a Gotenberg server print it to
// PDF.
type GotenbergRenderer struct {
	baseURL    string
	images     ImageLocator
	httpClient *http.Client
	maxRetries int
	backoffs   []time.Duration
}

type GotenbergOption func(*GotenbergRenderer)

func WithHTTPClient(client *http.Client) GotenbergOption {
	return func(r *GotenbergRenderer) {
		r.httpClient = client
	}
}

// WithBackoffs replaces the wait between attempts.
func WithBackoffs(backoffs ...time.Duration) GotenbergOption {
	return func(r *GotenbergRenderer) {
		r.backoffs = backoffs
	}
}

func NewGotenbergRenderer(baseURL string, images ImageLocator, opts ...GotenbergOption) *GotenbergRenderer {
	r := &GotenbergRenderer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		images:  images,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		maxRetries: 3,
		backoffs:   []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *GotenbergRenderer) Render(ctx context.Context, session *models.Session) ([]byte, error) {
	if r.baseURL == "" {
		return nil, fmt.Errorf("gotenberg url is not configured: %w", ErrNotReady)
	}
	doc, err := BuildDocument(session, r.images)
	if err != nil {
		return nil, err
	}
	html, assets, err := renderHTML(doc)
	if err != nil {
		return nil, err
	}

	var pdf []byte
	err = r.RetryWithBackoff(ctx, func() error {
		var convErr error
		pdf, convErr = r.convert(ctx, html, assets)
		return convErr
	}, r.maxRetries)
	if err != nil {
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return nil, permanent.err
		}
		return nil, &models.RendererUnavailableError{Err: err}
	}
	return pdf, nil
}

// permanentError stops RetryWithBackoff; the request itself is wrong.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func (r *GotenbergRenderer) convert(ctx context.Context, html []byte, assets map[string]string) ([]byte, error) {
	body, contentType, err := buildConvertForm(html, assets)
	if err != nil {
		return nil, &permanentError{err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+convertHTMLPath, body)
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("failed to convert report: status %d, body: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &permanentError{err: fmt.Errorf("failed to convert report: status %d, body: %s", resp.StatusCode, string(data))}
	}
	return data, nil
}

func buildConvertForm(html []byte, assets map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(html); err != nil {
		return nil, "", err
	}
	for name, path := range assets {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read image %s: %w", filepath.Base(path), err)
		}
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// RetryWithBackoff executes a function with exponential backoff retry logic. A
// *permanentError ends the loop immediately, as does ctx.
func (r *GotenbergRenderer) RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return err
		}

		lastErr = err
		if i < len(r.backoffs) && i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoffs[i]):
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"asset": func(assets map[string]string, path string) string {
		for name, p := range assets {
			if p == path {
				return name
			}
		}
		return ""
	},
}).Parse(reportHTML))

type reportView struct {
	*Document
	Assets map[string]string
}

// renderHTML returns the page and the images it references, keyed by the file name
// used in the markup.
func renderHTML(doc *Document) ([]byte, map[string]string, error) {
	assets := make(map[string]string)
	for i, img := range doc.Images() {
		name := fmt.Sprintf("image-%03d%s", i+1, strings.ToLower(filepath.Ext(img.Path)))
		assets[name] = img.Path
	}
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, reportView{Document: doc, Assets: assets}); err != nil {
		return nil, nil, fmt.Errorf("failed to render report html: %w", err)
	}
	return buf.Bytes(), assets, nil
}

const reportHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Activity Report - {{.BuildingName}}</title>
<style>
  @page { size: A4; margin: 18mm; }
  body { font: 12px/1.6 "Times New Roman", Times, serif; color: #111; }
  .cover { text-align: center; page-break-after: always; }
  .cover h1 { font-size: 28pt; margin: 40mm 0 4mm; }
  .cover img { max-width: 100%; max-height: 110mm; }
  h2 { font-size: 16pt; margin: 8mm 0 2mm; }
  h3 { font-size: 13pt; margin: 6mm 0 2mm; }
  .figure { text-align: center; page-break-inside: avoid; margin: 4mm 0; }
  .figure img { width: 48%; max-height: 70mm; object-fit: cover; margin: 1mm; }
  .figure--large img { width: 100%; max-height: 110mm; object-fit: contain; }
  .caption { font-weight: bold; font-size: 10pt; }
  .missing { font-style: italic; }
</style>
</head>
<body>
<section class="cover">
  <p><strong>{{.CompanyName}}</strong></p>
  <h1>ACTIVITY REPORT</h1>
  <p><strong>{{.BuildingName}}</strong></p>
  <p>{{.BuildingLocation}}</p>
  {{with .CoverImage}}<img src="{{asset $.Assets .Path}}" alt="Building photo">{{else}}<p class="missing">No building photo uploaded.</p>{{end}}
  <p><strong>{{.TestingMonth}}</strong></p>
</section>
{{range .Sections}}
<section>
  {{if .Chapter}}<h2>{{.Heading}}</h2>{{else}}<h3>{{.Heading}}</h3>{{end}}
  {{range .Blocks}}
    {{if .Figure}}
    <div class="figure{{if .Figure.Large}} figure--large{{end}}">
      {{range .Figure.Images}}<img src="{{asset $.Assets .Path}}" alt="{{$.BuildingName}}">{{else}}<p class="missing">No images uploaded for this figure.</p>{{end}}
      <p class="caption">{{.Figure.Caption}}</p>
    </div>
    {{else}}
    <p>{{range .Paragraph}}{{if .Bold}}<strong>{{.Text}}</strong>{{else}}{{.Text}}{{end}}{{end}}</p>
    {{end}}
  {{end}}
</section>
{{end}}
<section class="signature">
  <p>Prepared by:</p>
  <p><strong>{{.PreparedBy}}</strong><br><em>{{.PreparedByRole}}</em></p>
</section>
</body>
</html>
`
