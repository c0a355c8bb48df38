package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jo-hoe/wallpaint/internal/imageio"
)

// Source is the part of the storage collaborator the loader needs.
type Source interface {
	Read(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

type decodedSource struct {
	img  image.Image
	info imageio.Info
}

// SourceLoader reads and decodes source images. Decoded images are kept for
// a short time so that re-processing a record with another colour does not
// decode the upload again. A cached image is only served while the source
// still exists in storage. Cached images are shared and must not be mutated.
type SourceLoader struct {
	storage Source
	cache   *cache.Cache
}

// NewSourceLoader creates a loader; ttl <= 0 disables caching.
func NewSourceLoader(storage Source, ttl time.Duration) *SourceLoader {
	l := &SourceLoader{storage: storage}
	if ttl > 0 {
		l.cache = cache.New(ttl, ttl*2)
	}
	return l
}

func (l *SourceLoader) Load(ctx context.Context, ref string) (image.Image, imageio.Info, error) {
	if l.cache != nil {
		if cached, ok := l.cache.Get(ref); ok {
			exists, err := l.storage.Exists(ctx, ref)
			if err != nil {
				return nil, imageio.Info{}, fmt.Errorf("failed to check source %s: %w", ref, err)
			}
			if !exists {
				l.cache.Delete(ref)
				return nil, imageio.Info{}, fmt.Errorf("source %s no longer exists", ref)
			}
			src := cached.(decodedSource)
			slog.Debug("pipeline: source served from cache", "source_ref", ref)
			return src.img, src.info, nil
		}
	}

	data, err := l.storage.Read(ctx, ref)
	if err != nil {
		return nil, imageio.Info{}, fmt.Errorf("failed to read source %s: %w", ref, err)
	}
	img, info, err := imageio.Decode(data)
	if err != nil {
		return nil, imageio.Info{}, fmt.Errorf("failed to decode source %s: %w", ref, err)
	}

	if l.cache != nil {
		l.cache.SetDefault(ref, decodedSource{img: img, info: info})
	}
	return img, info, nil
}
