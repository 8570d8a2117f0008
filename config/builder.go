package config

import (
	"errors"
	"sort"

	"github.com/jpalmerr/labwatch"
)

// Build converts parsed configuration into a [labwatch.Target] and the
// [labwatch.Option] values for [labwatch.New].
//
// Returns an error if the URL is missing or an option is invalid.
func Build(cfg *Config) (labwatch.Target, []labwatch.Option, error) {
	if cfg.URL == "" {
		return labwatch.Target{}, nil, errors.New("url is required")
	}

	var targetOpts []labwatch.TargetOption
	if cfg.AuthHeader != "" {
		targetOpts = append(targetOpts, labwatch.WithAuthHeader(labwatch.AuthHeader(cfg.AuthHeader)))
	}
	if cfg.Timeout != 0 {
		targetOpts = append(targetOpts, labwatch.WithTimeout(cfg.Timeout.Duration()))
	}
	if len(cfg.Headers) > 0 {
		targetOpts = append(targetOpts, labwatch.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}

	target, err := labwatch.NewTarget(cfg.URL, cfg.Token, targetOpts...)
	if err != nil {
		return labwatch.Target{}, nil, err
	}

	opts := []labwatch.Option{
		labwatch.WithDatabase(cfg.Database),
		labwatch.WithSaveResponses(cfg.SaveResponses),
	}
	if cfg.Continuous {
		opts = append(opts, labwatch.WithContinuous(cfg.Interval.Duration()))
	}
	if cfg.Listen != "" {
		opts = append(opts, labwatch.WithListenAddr(cfg.Listen))
	}

	return target, opts, nil
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
