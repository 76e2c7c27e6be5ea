package inventory

import (
	"context"

	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/services/assets"
)

// assetSaga tracks every file a batch intends to write so a failed batch can
// remove them. Paths are recorded before the write starts.
type assetSaga struct {
	gen   assets.Generator
	log   *zap.Logger
	paths []string
}

func (sg *assetSaga) generate(ctx context.Context, kind assets.Kind, meta assets.ItemMeta) (string, error) {
	intended, err := sg.gen.PathFor(kind, meta.ItemUID)
	if err != nil {
		return "", asAssetError(err, kind, meta.ItemUID)
	}
	sg.paths = append(sg.paths, intended)

	rel, err := sg.gen.Generate(ctx, kind, meta)
	if err != nil {
		return "", asAssetError(err, kind, meta.ItemUID)
	}
	if rel == "" {
		return "", apperr.New(apperr.ErrAssetGeneration, "%s for %s returned no path", kind, meta.ItemUID)
	}
	if rel != intended {
		sg.paths = append(sg.paths, rel)
	}
	return rel, nil
}

// compensate deletes every recorded path. Failures are logged only.
func (sg *assetSaga) compensate() {
	for i := len(sg.paths) - 1; i >= 0; i-- {
		if err := sg.gen.Delete(sg.paths[i]); err != nil {
			sg.log.Warn("failed to remove asset of rolled back batch", zap.String("path", sg.paths[i]), zap.Error(err))
		}
	}
	sg.paths = nil
}

func asAssetError(err error, kind assets.Kind, uid string) error {
	if apperr.KindOf(err) == apperr.KindAssetGeneration {
		return err
	}
	return apperr.Wrap(apperr.ErrAssetGeneration, err, "generate %s for %s", kind, uid)
}
