package plugins

import (
	"strconv"
	"strings"
)

// clampMax is an arbitrary upper bound on digit counts.
const clampMax = 50

// unset marks a digit option that was not given.
const unset = -1

// NumberOptions are the options shared by the decimal, percent and
// currency formatters.
type NumberOptions struct {
	Style    string // decimal, percent, permille, scientific (decimal formatter); symbol, code, narrow (currency)
	Group    bool
	Round    string // half-even (default), ceil, floor, truncate
	MinInt   int
	MinFrac  int
	MaxFrac  int
	MinSig   int
	MaxSig   int
	Locale   string
	Currency string
}

func defaultNumberOptions() NumberOptions {
	return NumberOptions{
		Group:   true,
		MinInt:  unset,
		MinFrac: unset,
		MaxFrac: unset,
		MinSig:  unset,
		MaxSig:  unset,
	}
}

// splitOption splits "key:value" at the first colon.
func splitOption(arg string) (key, val string) {
	if i := strings.IndexByte(arg, ':'); i >= 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, ""
}

// ParseDecimalOptions interprets decimal formatter arguments such as
// "style:percent", "group", "no-group", "minFrac:2" or "round:ceil".
// Unknown options are ignored.
func ParseDecimalOptions(args []string) NumberOptions {
	opts := defaultNumberOptions()
	opts.Style = "decimal"
	for _, arg := range args {
		key, val := splitOption(arg)
		if key == "style" {
			switch val {
			case "decimal", "standard":
				opts.Style = "decimal"
			case "percent", "permille", "scientific":
				opts.Style = val
			}
			continue
		}
		numberOption(key, val, &opts)
	}
	return opts
}

// ParseCurrencyOptions interprets currency formatter arguments. Besides
// the number options it accepts "style:symbol|code|narrow|standard",
// "symbol:narrow" and "code:XXX".
func ParseCurrencyOptions(args []string) NumberOptions {
	opts := defaultNumberOptions()
	opts.Style = "symbol"
	for _, arg := range args {
		key, val := splitOption(arg)
		switch key {
		case "style":
			switch val {
			case "symbol", "standard", "accounting":
				opts.Style = "symbol"
			case "code", "iso":
				opts.Style = "code"
			case "narrow", "short":
				opts.Style = "narrow"
			}
		case "symbol":
			if val == "narrow" {
				opts.Style = "narrow"
			}
		case "code", "currency":
			opts.Currency = strings.ToUpper(val)
		default:
			numberOption(key, val, &opts)
		}
	}
	return opts
}

func numberOption(key, val string, opts *NumberOptions) {
	switch key {
	case "group", "grouping":
		opts.Group = val == "" || val == "true"
	case "no-group", "no-grouping":
		opts.Group = false
	case "round", "rounding":
		switch val {
		case "ceil", "ceiling":
			opts.Round = "ceil"
		case "floor":
			opts.Round = "floor"
		case "truncate", "down":
			opts.Round = "truncate"
		case "half-even", "":
			opts.Round = "half-even"
		}
	case "minint", "minInt", "minimumIntegerDigits":
		opts.MinInt = clampDigits(val)
	case "maxfrac", "maxFrac", "maximumFractionDigits":
		opts.MaxFrac = clampDigits(val)
	case "minfrac", "minFrac", "minimumFractionDigits":
		opts.MinFrac = clampDigits(val)
	case "maxsig", "maxSig", "maximumSignificantDigits":
		opts.MaxSig = clampDigits(val)
	case "minsig", "minSig", "minimumSignificantDigits":
		opts.MinSig = clampDigits(val)
	case "locale":
		opts.Locale = val
	}
}

// clampDigits parses the leading digits of val into [0, clampMax].
func clampDigits(val string) int {
	end := 0
	for end < len(val) && val[end] >= '0' && val[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(val[:end])
	return min(max(n, 0), clampMax)
}

// DateOptions are the datetime formatter options.
type DateOptions struct {
	Date     string // short, medium, long, full
	Time     string
	Skeleton string
	Locale   string
}

var formatWidths = map[string]bool{"short": true, "medium": true, "long": true, "full": true}

// ParseDateOptions interprets datetime formatter arguments: "date" and
// "time" select the short form, "date:long", "time:full" or
// "datetime:medium" pick a width, any other bare word or unknown width is
// appended to the field skeleton (e.g. "yMMMd"), and "locale:xx"
// overrides the render locale. With no date, time or skeleton given the
// date is rendered in medium width.
func ParseDateOptions(args []string) DateOptions {
	var opts DateOptions
	addSkeleton := func(s string) { opts.Skeleton += s }

	for _, arg := range args {
		key, val := splitOption(arg)
		if !strings.Contains(arg, ":") {
			switch {
			case arg == "date":
				opts.Date = "short"
			case arg == "time":
				opts.Time = "short"
			case formatWidths[arg]:
				opts.Date, opts.Time = arg, arg
			default:
				addSkeleton(arg)
			}
			continue
		}
		switch key {
		case "date", "time", "datetime":
			if !formatWidths[val] {
				addSkeleton(val)
				continue
			}
			if key != "time" {
				opts.Date = val
			}
			if key != "date" {
				opts.Time = val
			}
		case "skeleton":
			opts.Skeleton = val
		case "locale":
			opts.Locale = val
		}
	}

	if opts.Date == "" && opts.Time == "" && opts.Skeleton == "" {
		opts.Date = "medium"
	}
	return opts
}
