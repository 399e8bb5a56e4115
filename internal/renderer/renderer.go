package renderer

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"reportr-backend/internal/models"
)

// ErrNotReady means the renderer cannot run at all, usually because it is not
// configured or the session lacks the data it needs. Callers may retry later.
var ErrNotReady = errors.New("report renderer is not ready")

// Renderer turns a session into PDF bytes. A successful call never returns empty
// output.
type Renderer interface {
	Render(ctx context.Context, session *models.Session) ([]byte, error)
}

// ImageLocator resolves where a stored image's bytes live.
type ImageLocator interface {
	ImagePath(sessionID uuid.UUID, image models.ImageMeta) string
}

// Unconfigured is used when no renderer has been selected.
type Unconfigured struct{}

func (Unconfigured) Render(context.Context, *models.Session) ([]byte, error) {
	return nil, ErrNotReady
}

// Func adapts a function to the Renderer interface.
type Func func(ctx context.Context, session *models.Session) ([]byte, error)

func (f Func) Render(ctx context.Context, session *models.Session) ([]byte, error) {
	return f(ctx, session)
}
