package plugins

import (
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/goodsign/monday"
	"golang.org/x/text/currency"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/value"
)

func i18nFormatters() []evaluator.Formatter {
	return []evaluator.Formatter{
		&decimal{base("decimal")},
		&percent{base("percent")},
		&currencyFormatter{base("currency")},
		&datetime{base("datetime")},
	}
}

// printer returns a message printer for the option locale, falling back to
// the render locale.
func printer(ctx *evaluator.Context, locale string) *message.Printer {
	if locale == "" {
		locale = ctx.Locale
	}
	return message.NewPrinter(localeTag(locale))
}

// defaultMaxFrac is the fraction digit limit of the default decimal pattern.
const defaultMaxFrac = 3

// numberFormatOptions translates parsed options into x/text number options.
// shown is the value as it will be displayed (after percent scaling), which
// the minimum significant digits are counted against.
func numberFormatOptions(shown float64, opts NumberOptions) []number.Option {
	var out []number.Option
	if !opts.Group {
		out = append(out, number.NoSeparator())
	}
	if opts.MinInt != unset {
		out = append(out, number.MinIntegerDigits(opts.MinInt))
	}
	minFrac := opts.MinFrac
	if opts.MinSig != unset && opts.MinSig > 0 {
		minFrac = max(minFrac, sigFraction(shown, opts.MinSig))
	}
	if minFrac != unset {
		out = append(out, number.MinFractionDigits(minFrac))
	}
	switch {
	case opts.MaxFrac != unset:
		out = append(out, number.MaxFractionDigits(max(opts.MaxFrac, minFrac)))
	case minFrac > defaultMaxFrac:
		out = append(out, number.MaxFractionDigits(minFrac))
	}
	if opts.MaxSig != unset && opts.MaxSig > 0 {
		out = append(out, number.Precision(opts.MaxSig))
	}
	return out
}

// sigFraction returns the fraction digits v needs to show at least sig
// significant digits: 1234.5 needs 2 for six, 0.0123 needs 5 for four.
func sigFraction(v float64, sig int) int {
	a := math.Abs(v)
	if a == 0 || math.IsInf(a, 0) || math.IsNaN(a) {
		return max(sig-1, 0)
	}
	exp := int(math.Floor(math.Log10(a)))
	return min(max(sig-1-exp, 0), clampMax)
}

// round applies the rounding mode at the maximum fraction digits, leaving
// half-even rounding to the number formatter.
func round(v float64, opts NumberOptions) float64 {
	if opts.MaxFrac == unset || opts.Round == "" || opts.Round == "half-even" {
		return v
	}
	scale := math.Pow10(opts.MaxFrac)
	switch opts.Round {
	case "ceil":
		return math.Ceil(v*scale) / scale
	case "floor":
		return math.Floor(v*scale) / scale
	case "truncate":
		return math.Trunc(v*scale) / scale
	}
	return v
}

// numericInput returns the number carried by node: a number, a numeric
// string, or an object with a value/decimalValue member.
func numericInput(node value.Value) (float64, bool) {
	switch n := node.(type) {
	case *value.Number:
		return n.Value, true
	case *value.String:
		v, ok := value.ParseNumber(n.Value)
		return v, ok
	case *value.Object:
		for _, key := range []string{"value", "decimalValue", "amount"} {
			if m := value.Member(n, key); !value.IsMissing(m) {
				return numericInput(m)
			}
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// decimal

type decimal struct{ evaluator.BaseFormatter }

func (f *decimal) Validate(args *evaluator.Arguments) error {
	args.SetOpaque(ParseDecimalOptions(args.Args()))
	return nil
}

func (f *decimal) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	opts, _ := evaluator.OpaqueAs[NumberOptions](args)
	v, ok := numericInput(node)
	if !ok {
		return value.MISSING, nil
	}
	return ctx.BuildValue(formatDecimal(ctx, v, opts)), nil
}

func formatDecimal(ctx *evaluator.Context, v float64, opts NumberOptions) string {
	p := printer(ctx, opts.Locale)
	v = round(v, opts)
	shown := v
	switch opts.Style {
	case "percent":
		shown = v * 100
	case "permille":
		shown = v * 1000
	case "scientific":
		shown = 1
	}
	nopts := numberFormatOptions(shown, opts)
	switch opts.Style {
	case "percent":
		return p.Sprint(number.Percent(v, nopts...))
	case "permille":
		return p.Sprint(number.PerMille(v, nopts...))
	case "scientific":
		return p.Sprint(number.Scientific(v, nopts...))
	}
	return p.Sprint(number.Decimal(v, nopts...))
}

// ---------------------------------------------------------------------------
// percent

type percent struct{ evaluator.BaseFormatter }

func (f *percent) Validate(args *evaluator.Arguments) error {
	opts := ParseDecimalOptions(args.Args())
	opts.Style = "percent"
	args.SetOpaque(opts)
	return nil
}

func (f *percent) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	opts, _ := evaluator.OpaqueAs[NumberOptions](args)
	v, ok := numericInput(node)
	if !ok {
		return value.MISSING, nil
	}
	return ctx.BuildValue(formatDecimal(ctx, v, opts)), nil
}

// ---------------------------------------------------------------------------
// currency

type currencyFormatter struct{ evaluator.BaseFormatter }

func (f *currencyFormatter) Validate(args *evaluator.Arguments) error {
	opts := ParseCurrencyOptions(args.Args())
	if opts.Currency != "" {
		if _, err := currency.ParseISO(opts.Currency); err != nil {
			return serrors.NewArgument(f.ID, "unknown currency code "+opts.Currency)
		}
	}
	args.SetOpaque(opts)
	return nil
}

// Apply formats a number in the currency named by the code option, or a
// money object {value|decimalValue, currency|currencyCode}.
func (f *currencyFormatter) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	opts, _ := evaluator.OpaqueAs[NumberOptions](args)
	v, ok := numericInput(node)
	if !ok {
		return value.MISSING, nil
	}

	code := opts.Currency
	for _, key := range []string{"currency", "currencyCode"} {
		if c := value.Member(node, key); value.Truthy(c) {
			code = strings.ToUpper(value.Text(c))
		}
	}
	if code == "" {
		code = "USD"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return value.MISSING, nil
	}
	return ctx.BuildValue(formatCurrency(ctx, v, unit, opts)), nil
}

func formatCurrency(ctx *evaluator.Context, v float64, unit currency.Unit, opts NumberOptions) string {
	p := printer(ctx, opts.Locale)
	symbol := currency.Symbol
	switch opts.Style {
	case "code":
		symbol = currency.ISO
	case "narrow":
		symbol = currency.NarrowSymbol
	}

	nopts := numberFormatOptions(v, opts)
	if len(nopts) == 0 && opts.Round == "" {
		return p.Sprint(symbol(unit.Amount(v)))
	}
	// Explicit digit options replace the currency's standard rounding
	return p.Sprint(symbol(unit)) + " " + p.Sprint(number.Decimal(round(v, opts), nopts...))
}

// ---------------------------------------------------------------------------
// datetime

type datetime struct{ evaluator.BaseFormatter }

func (f *datetime) Validate(args *evaluator.Arguments) error {
	args.SetOpaque(ParseDateOptions(args.Args()))
	return nil
}

// Apply formats an epoch-millisecond number or a date string.
func (f *datetime) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	opts, _ := evaluator.OpaqueAs[DateOptions](args)
	t, ok := timeInput(ctx, node)
	if !ok {
		return value.MISSING, nil
	}
	locale := opts.Locale
	if locale == "" {
		locale = ctx.Locale
	}
	return ctx.BuildValue(FormatDate(t, opts, locale)), nil
}

func timeInput(ctx *evaluator.Context, node value.Value) (time.Time, bool) {
	switch n := node.(type) {
	case *value.Number:
		return time.UnixMilli(int64(n.Value)).In(ctx.Zone()), true
	case *value.String:
		t, err := dateparse.ParseIn(strings.TrimSpace(n.Value), ctx.Zone())
		if err != nil {
			return time.Time{}, false
		}
		return t.In(ctx.Zone()), true
	case *value.Object:
		for _, key := range []string{"iso", "date", "value"} {
			if m := value.Member(n, key); !value.IsMissing(m) {
				return timeInput(ctx, m)
			}
		}
	}
	return time.Time{}, false
}

// FormatDate renders t according to opts with localized month and day names.
func FormatDate(t time.Time, opts DateOptions, locale string) string {
	loc := mondayLocale(locale)
	var parts []string
	if opts.Date != "" {
		parts = append(parts, dateLayout(opts.Date, loc))
	}
	if opts.Time != "" {
		parts = append(parts, timeLayout(opts.Time, loc))
	}
	if opts.Skeleton != "" {
		parts = append(parts, skeletonLayout(opts.Skeleton))
	}
	return monday.Format(t, strings.Join(parts, ", "), loc)
}

// mondayLocale maps a locale string to a monday.Locale.
func mondayLocale(locale string) monday.Locale {
	locale = strings.ToLower(strings.ReplaceAll(locale, "-", "_"))

	localeMap := map[string]monday.Locale{
		"en":    monday.LocaleEnUS,
		"en_us": monday.LocaleEnUS,
		"en_gb": monday.LocaleEnGB,
		"de":    monday.LocaleDeDE,
		"de_de": monday.LocaleDeDE,
		"fr":    monday.LocaleFrFR,
		"fr_fr": monday.LocaleFrFR,
		"fr_ca": monday.LocaleFrCA,
		"es":    monday.LocaleEsES,
		"it":    monday.LocaleItIT,
		"pt":    monday.LocalePtPT,
		"pt_br": monday.LocalePtBR,
		"nl":    monday.LocaleNlNL,
		"ru":    monday.LocaleRuRU,
		"pl":    monday.LocalePlPL,
		"da":    monday.LocaleDaDK,
		"fi":    monday.LocaleFiFI,
		"sv":    monday.LocaleSvSE,
		"nb":    monday.LocaleNbNO,
		"ja":    monday.LocaleJaJP,
		"zh":    monday.LocaleZhCN,
		"zh_tw": monday.LocaleZhTW,
		"ko":    monday.LocaleKoKR,
	}

	if loc, ok := localeMap[locale]; ok {
		return loc
	}
	if lang, _, found := strings.Cut(locale, "_"); found {
		if loc, ok := localeMap[lang]; ok {
			return loc
		}
	}
	return monday.LocaleEnUS
}

func dateLayout(width string, loc monday.Locale) string {
	us := loc == monday.LocaleEnUS
	switch width {
	case "short":
		switch loc {
		case monday.LocaleEnUS:
			return "1/2/06"
		case monday.LocaleDeDE:
			return "02.01.06"
		case monday.LocaleJaJP, monday.LocaleZhCN, monday.LocaleZhTW:
			return "06/01/02"
		}
		return "02/01/06"
	case "medium":
		if us {
			return "Jan 2, 2006"
		}
		return "2 Jan 2006"
	case "long":
		if us {
			return "January 2, 2006"
		}
		return "2 January 2006"
	}
	if us {
		return "Monday, January 2, 2006"
	}
	return "Monday, 2 January 2006"
}

func timeLayout(width string, loc monday.Locale) string {
	clock := "15:04"
	if loc == monday.LocaleEnUS {
		clock = "3:04"
	}
	if width != "short" {
		clock += ":05"
	}
	if loc == monday.LocaleEnUS {
		clock += " PM"
	}
	if width == "long" || width == "full" {
		clock += " MST"
	}
	return clock
}

// skeletonFields maps runs of CLDR skeleton letters to Go layout fields.
var skeletonFields = map[string]string{
	"y": "2006", "yyyy": "2006", "yy": "06",
	"M": "1", "MM": "01", "MMM": "Jan", "MMMM": "January",
	"d": "2", "dd": "02",
	"E": "Mon", "EEE": "Mon", "EEEE": "Monday",
	"h": "3", "hh": "03", "H": "15", "HH": "15",
	"m": "04", "mm": "04", "s": "05", "ss": "05",
	"a": "PM", "z": "MST", "zzzz": "MST",
}

// skeletonLayout renders each run of identical skeleton letters as its
// layout field, separated by spaces. Unknown runs are dropped.
func skeletonLayout(skeleton string) string {
	var fields []string
	for i := 0; i < len(skeleton); {
		j := i
		for j < len(skeleton) && skeleton[j] == skeleton[i] {
			j++
		}
		if f, ok := skeletonFields[skeleton[i:j]]; ok {
			fields = append(fields, f)
		}
		i = j
	}
	return strings.Join(fields, " ")
}
