// Package plugins provides the standard formatter and predicate library:
// content helpers for rendering media items, locale-aware number, currency
// and date formatting, and general utilities such as json, markdown and
// apply (render a named partial).
package plugins

import (
	"github.com/sambeau/sage/pkg/sage/evaluator"
)

// Options configures the standard library.
type Options struct {
	// BaseURLKey is the reference AbsUrl resolves for the site root.
	BaseURLKey string
	// Disabled lists identifiers to leave out.
	Disabled []string
}

// Default returns a library with every standard formatter and predicate
// registered, minus opts.Disabled.
func Default(opts Options) (*evaluator.Library, error) {
	lib := evaluator.NewLibrary()
	if err := Register(lib, opts.BaseURLKey); err != nil {
		return nil, err
	}
	if err := lib.Disable(opts.Disabled...); err != nil {
		return nil, err
	}
	return lib, nil
}

// Register adds the standard plugins to lib. Identifiers already present in
// lib are a configuration error.
func Register(lib *evaluator.Library, baseURLKey string) error {
	if err := lib.Formatters.Register(contentFormatters(baseURLKey)...); err != nil {
		return err
	}
	if err := lib.Formatters.Register(utilityFormatters()...); err != nil {
		return err
	}
	if err := lib.Formatters.Register(i18nFormatters()...); err != nil {
		return err
	}
	return lib.Predicates.Register(predicates()...)
}
