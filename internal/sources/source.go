package sources

import (
	"context"
	"errors"
	"fmt"

	"proxycrawler/internal/config"
	"proxycrawler/internal/domain"
)

// ErrSourceUnavailable marks every transport level failure of a source.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source is a remote proxy list. Fetch may return candidates together with a
// *SourceError when the listing broke off part way.
type Source interface {
	Name() string
	URL() string
	Fetch(ctx context.Context) ([]domain.Candidate, error)
}

type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

func unavailable(source string, err error) error {
	return &SourceError{Source: source, Err: err}
}

// FromConfig returns the enabled sources in their configured order.
func FromConfig(cfg config.Config) []Source {
	var list []Source
	if cfg.Sources.Geonode.Enabled {
		list = append(list, GeonodeFromConfig(cfg))
	}
	if cfg.Sources.FreeProxyList.Enabled {
		list = append(list, FreeProxyListFromConfig(cfg))
	}
	return list
}
