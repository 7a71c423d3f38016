package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/platform"
)

// Coverage maps each registered name to the strategy Default picks per
// supported platform.
type Coverage map[string]map[platform.Platform]string

// ValidateRegistry checks that every constructor is total over the supported
// platforms: Default must describe an artifact with the registered name and
// a non-nil strategy for each of them. Unsupported platforms are allowed but
// logged, since a product may document them explicitly.
func (r *Registry) ValidateRegistry(ctx context.Context) (Coverage, error) {
	logger := ctxlog.FromContext(ctx)
	var errs []string
	coverage := make(Coverage, len(r.constructors))

	for _, name := range r.Names() {
		c := r.constructors[name]
		coverage[name] = make(map[platform.Platform]string)
		for _, p := range platform.Supported() {
			a := c.Default(p)
			if a.Name != name {
				errs = append(errs, fmt.Sprintf("constructor '%s': Default(%s) describes artifact '%s'", name, p, a.Name))
				continue
			}
			if a.Strategy == nil {
				errs = append(errs, fmt.Sprintf("constructor '%s': Default(%s) has no strategy", name, p))
				continue
			}
			coverage[name][p] = a.StrategyName()
			if _, unsupported := a.Strategy.(artifact.UnsupportedStrategy); unsupported {
				logger.Debug("Artifact is unsupported on platform.", "artifact", name, "platform", p.String())
			}
		}
	}

	if len(errs) > 0 {
		return coverage, fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return coverage, nil
}
