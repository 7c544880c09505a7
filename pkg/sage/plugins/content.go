package plugins

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/path"
	"github.com/sambeau/sage/pkg/sage/value"
)

// DefaultBaseURLKey is where AbsUrl looks up the site base URL.
const DefaultBaseURLKey = "base-url"

// storeItemRecordType marks commerce items in recordType.
const storeItemRecordType = 11

// contentFormatters returns the content formatters. baseURLKey is the
// reference AbsUrl resolves for the site root.
func contentFormatters(baseURLKey string) []evaluator.Formatter {
	return []evaluator.Formatter{
		newAbsURL(baseURLKey),
		newAudioPlayer(),
		&capitalize{base("capitalize")},
		&childImageMeta{base("child-image-meta")},
		&colorWeight{base("color-weight")},
		&coverImageMeta{base("cover-image-meta")},
		&height{base("height")},
		&humanizeDuration{base("humanizeDuration")},
		&image{base("image")},
		&imageColor{base("image-color")},
		&imageMeta{base("image-meta")},
		&itemClasses{base("item-classes")},
		&resizedHeightForWidth{resizer{required("resizedHeightForWidth")}},
		&resizedWidthForHeight{resizer{required("resizedWidthForHeight")}},
		&thumbnailForHeight{resizer{required("squarespaceThumbnailForHeight")}},
		&thumbnailForWidth{resizer{required("squarespaceThumbnailForWidth")}},
		&timesince{base("timesince")},
		&video{base("video")},
		&width{base("width")},
	}
}

func base(id string) evaluator.BaseFormatter {
	return evaluator.BaseFormatter{ID: id}
}

func required(id string) evaluator.BaseFormatter {
	return evaluator.BaseFormatter{ID: id, Required: true}
}

// ---------------------------------------------------------------------------
// AbsUrl

type absURL struct {
	evaluator.BaseFormatter
	key path.Path
}

func newAbsURL(key string) *absURL {
	if key == "" {
		key = DefaultBaseURLKey
	}
	return &absURL{BaseFormatter: base("AbsUrl"), key: path.MustCompile(key)}
}

func (f *absURL) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	baseURL := value.Text(ctx.Resolve(f.key))
	return ctx.BuildValue(baseURL + "/" + value.Text(node)), nil
}

// ---------------------------------------------------------------------------
// audio-player

type audioPlayer struct {
	evaluator.BaseFormatter
	tmpl evaluator.Instruction
}

func newAudioPlayer() *audioPlayer {
	v := func(raw string) evaluator.Instruction {
		return &evaluator.Variable{Raw: raw, Path: path.MustCompile(raw)}
	}
	tmpl := evaluator.Block{
		evaluator.Text(`<div class="squarespace-audio-player" data-audio-asset-url="`),
		v("structuredContent.audioAssetUrl"),
		evaluator.Text(`" data-item-id="`),
		v("id"),
		evaluator.Text(`" id="audio-player-`),
		v("id"),
		evaluator.Text(`"></div>`),
	}
	return &audioPlayer{BaseFormatter: base("audio-player"), tmpl: tmpl}
}

func (f *audioPlayer) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	return ctx.ExecuteTemplate(f.tmpl, node, true)
}

// ---------------------------------------------------------------------------
// capitalize

type capitalize struct{ evaluator.BaseFormatter }

func (f *capitalize) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	return ctx.BuildValue(cases.Upper(localeTag(ctx.Locale)).String(value.Text(node))), nil
}

// ---------------------------------------------------------------------------
// image meta family

func writeImageMeta(sb *strings.Builder, img value.Value) {
	if value.IsMissing(img) {
		return
	}
	assetURL := value.Text(value.Member(img, "assetUrl"))
	if _, ok := value.Member(img, "licensedAssetPreview").(*value.Object); ok {
		sb.WriteString(`data-licensed-asset-preview="true" `)
	}
	sb.WriteString(`data-src="` + assetURL)
	sb.WriteString(`" data-image="` + assetURL)
	sb.WriteString(`" data-image-dimensions="` + value.Text(value.Member(img, "originalSize")))
	sb.WriteString(`" data-image-focal-point="` + focalPoint(img))
	sb.WriteString(`" alt="` + escapeAttr(altText(img)))
	sb.WriteString(`" `)
}

type imageMeta struct{ evaluator.BaseFormatter }

func (f *imageMeta) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	var sb strings.Builder
	writeImageMeta(&sb, node)
	return ctx.BuildValue(sb.String()), nil
}

type coverImageMeta struct{ evaluator.BaseFormatter }

func (f *coverImageMeta) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	var sb strings.Builder
	writeImageMeta(&sb, value.Member(node, "coverImage"))
	return ctx.BuildValue(sb.String()), nil
}

type childImageMeta struct{ evaluator.BaseFormatter }

func (f *childImageMeta) Validate(args *evaluator.Arguments) error {
	if err := args.AtMost(1); err != nil {
		return err
	}
	index := 0
	if args.Count() == 1 {
		n, err := strconv.Atoi(args.First())
		if err != nil {
			return serrors.NewArgument(f.ID, fmt.Sprintf("expected an integer index, found '%s'", args.First()))
		}
		index = n
	}
	args.SetOpaque(index)
	return nil
}

func (f *childImageMeta) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	index, _ := evaluator.OpaqueAs[int](args)
	var sb strings.Builder
	writeImageMeta(&sb, value.Element(value.Member(node, "items"), index))
	return ctx.BuildValue(sb.String()), nil
}

// ---------------------------------------------------------------------------
// color-weight

// halfBright splits light from dark colors.
const halfBright = 0xFFFFFF / 2

type colorWeight struct{ evaluator.BaseFormatter }

func (f *colorWeight) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	color, ok := parseHexColor(value.Text(node))
	if !ok {
		return value.MISSING, nil
	}
	if color > halfBright {
		return ctx.BuildValue("light"), nil
	}
	return ctx.BuildValue("dark"), nil
}

// ---------------------------------------------------------------------------
// width / height

type width struct{ evaluator.BaseFormatter }

func (f *width) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	w, _, ok := splitDimensions(node)
	if !ok {
		return ctx.BuildValue(invalidSize), nil
	}
	return value.NewInt(int64(w)), nil
}

type height struct{ evaluator.BaseFormatter }

func (f *height) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	_, h, ok := splitDimensions(node)
	if !ok {
		return ctx.BuildValue(invalidSize), nil
	}
	return value.NewInt(int64(h)), nil
}

// ---------------------------------------------------------------------------
// humanizeDuration

type humanizeDuration struct{ evaluator.BaseFormatter }

// Apply renders milliseconds as minutes and seconds ("m:ss").
func (f *humanizeDuration) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	d := time.Duration(value.Int(node)) * time.Millisecond
	minutes := int64(d / time.Minute)
	seconds := int64((d % time.Minute) / time.Second)
	return ctx.BuildValue(fmt.Sprintf("%d:%02d", minutes, seconds)), nil
}

// ---------------------------------------------------------------------------
// image

type image struct{ evaluator.BaseFormatter }

func (f *image) Validate(args *evaluator.Arguments) error {
	return args.AtMost(1)
}

func (f *image) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	assetURL := value.Text(value.Member(node, "assetUrl"))
	alt := f.altText(ctx)
	cls := "thumb-image"
	if args.Count() == 1 {
		cls = args.First()
	}

	var sb strings.Builder
	sb.WriteString(`<noscript><img src="` + assetURL + `" `)
	if alt != "" {
		sb.WriteString(` alt="` + escapeAttr(alt) + `" `)
	}
	sb.WriteString(` /></noscript>`)

	sb.WriteString(`<img class="` + cls + `" `)
	if alt != "" {
		sb.WriteString(`alt="` + escapeAttr(alt) + `" `)
	}
	if _, ok := value.Member(node, "licensedAssetPreview").(*value.Object); ok {
		sb.WriteString(`data-licensed-asset-preview="true" `)
	}
	sb.WriteString(`data-src="` + assetURL + `" `)
	sb.WriteString(`data-image="` + assetURL + `" `)
	sb.WriteString(`data-image-dimensions="` + value.Text(value.Member(node, "originalSize")) + `" `)
	sb.WriteString(`data-image-focal-point="` + focalPoint(node) + `" `)
	sb.WriteString(`data-load="false" `)
	sb.WriteString(`data-image-id="` + value.Text(value.Member(node, "id")) + `" `)
	sb.WriteString(`data-type="image" />`)
	return ctx.BuildValue(sb.String()), nil
}

// altText prefers the caption stored on an enclosing block.
func (f *image) altText(ctx *evaluator.Context) string {
	alt := value.Text(value.Member(ctx.ResolveString("info"), "altText"))
	if strings.TrimSpace(alt) != "" {
		return alt
	}
	return altText(ctx.Node())
}

// ---------------------------------------------------------------------------
// image-color

var colorPositions = []string{"topLeft", "topRight", "bottomLeft", "bottomRight", "center"}

type imageColor struct{ evaluator.BaseFormatter }

func (f *imageColor) Validate(args *evaluator.Arguments) error {
	if err := args.AtMost(2); err != nil {
		return err
	}
	if args.Count() >= 1 {
		for _, pos := range colorPositions {
			if pos == args.First() {
				return nil
			}
		}
		return serrors.NewArgument(f.ID, fmt.Sprintf("illegal value '%s' found", args.First()))
	}
	return nil
}

func (f *imageColor) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	colorData := value.Member(node, "colorData")
	if value.IsMissing(colorData) {
		return value.MISSING, nil
	}

	var sb strings.Builder
	if args.Count() > 0 {
		key := args.First()
		color := value.Text(value.Member(colorData, key+"Average"))
		if color == "" {
			sb.WriteString(`"` + key + `" not found.`)
		} else {
			if args.Count() == 2 {
				sb.WriteString(args.Get(1) + ": ")
			}
			sb.WriteString("#" + color)
		}
		return ctx.BuildValue(sb.String()), nil
	}

	for _, key := range colorPositions {
		sb.WriteString(`data-color-` + key + `="#`)
		sb.WriteString(value.Text(value.Member(colorData, key+"Average")))
		sb.WriteString(`" `)
	}
	return ctx.BuildValue(sb.String()), nil
}

// ---------------------------------------------------------------------------
// item-classes

type itemClasses struct{ evaluator.BaseFormatter }

func (f *itemClasses) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	var sb strings.Builder
	sb.WriteString("hentry")

	if v := ctx.ResolveString("promotedBlockType"); value.Truthy(v) {
		sb.WriteString(" promoted promoted-block-" + slugify(value.Text(v)))
	}
	if v := ctx.ResolveString("categories"); value.Truthy(v) {
		for i := 0; i < value.Size(v); i++ {
			sb.WriteString(" category-" + slugify(value.Text(value.Element(v, i))))
		}
	}
	if v := ctx.ResolveString("tags"); value.Truthy(v) {
		for i := 0; i < value.Size(v); i++ {
			sb.WriteString(" tag-" + slugify(value.Text(value.Element(v, i))))
		}
	}
	if name := value.Member(ctx.ResolveString("author"), "displayName"); value.Truthy(name) {
		sb.WriteString(" author-" + slugify(value.Text(name)))
	}
	sb.WriteString(" post-type-" + value.Text(ctx.ResolveString("recordTypeLabel")))

	if v := ctx.ResolveString(evaluator.IndexVariable); !value.IsMissing(v) {
		sb.WriteString(" article-index-" + strconv.FormatInt(value.Int(v), 10))
	}
	if value.Truthy(ctx.ResolveString("starred")) {
		sb.WriteString(" featured")
	}

	if value.Int(value.Member(node, "recordType")) == storeItemRecordType {
		if isOnSale(node) {
			sb.WriteString(" on-sale")
		}
		if isSoldOut(node) {
			sb.WriteString(" sold-out")
		}
	}
	return ctx.BuildValue(sb.String()), nil
}

func productVariants(item value.Value) []value.Value {
	if arr, ok := value.Dig(item, "structuredContent", "variants").(*value.Array); ok {
		return arr.Elements
	}
	return nil
}

func isOnSale(item value.Value) bool {
	for _, v := range productVariants(item) {
		if value.Truthy(value.Member(v, "onSale")) {
			return true
		}
	}
	return false
}

func isSoldOut(item value.Value) bool {
	variants := productVariants(item)
	if len(variants) == 0 {
		return false
	}
	for _, v := range variants {
		if value.Truthy(value.Member(v, "unlimited")) || value.Int(value.Member(v, "qtyInStock")) > 0 {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// resizing

type resizer struct{ evaluator.BaseFormatter }

func (f resizer) Validate(args *evaluator.Arguments) error {
	if err := args.AtLeast(1); err != nil {
		return err
	}
	n, err := strconv.Atoi(args.First())
	if err != nil {
		return serrors.NewArgument(f.ID, fmt.Sprintf("expected an integer size, found '%s'", args.First()))
	}
	args.SetOpaque(n)
	return nil
}

// resize scales the other dimension of "WxH" to match requested. With
// scaleWidth set, requested is a height and the width is returned.
func resize(node value.Value, scaleWidth bool, requested int) (int, bool) {
	w, h, ok := splitDimensions(node)
	if !ok || w == 0 || h == 0 {
		return 0, false
	}
	if scaleWidth {
		return int(float64(w) * (float64(requested) / float64(h))), true
	}
	return int(float64(h) * (float64(requested) / float64(w))), true
}

// thumbnailSize picks the smallest stock image width covering width.
func thumbnailSize(width int) string {
	switch {
	case width > 1000:
		return "1500w"
	case width > 750:
		return "1000w"
	case width > 500:
		return "750w"
	case width > 300:
		return "500w"
	case width > 100:
		return "300w"
	}
	return "100w"
}

type resizedHeightForWidth struct{ resizer }

func (f *resizedHeightForWidth) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	requested, _ := evaluator.OpaqueAs[int](args)
	n, ok := resize(node, false, requested)
	if !ok {
		return ctx.BuildValue(invalidSize), nil
	}
	return value.NewInt(int64(n)), nil
}

type resizedWidthForHeight struct{ resizer }

func (f *resizedWidthForHeight) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	requested, _ := evaluator.OpaqueAs[int](args)
	n, ok := resize(node, true, requested)
	if !ok {
		return ctx.BuildValue(invalidSize), nil
	}
	return value.NewInt(int64(n)), nil
}

type thumbnailForWidth struct{ resizer }

func (f *thumbnailForWidth) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	requested, _ := evaluator.OpaqueAs[int](args)
	return ctx.BuildValue(thumbnailSize(requested)), nil
}

type thumbnailForHeight struct{ resizer }

func (f *thumbnailForHeight) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	requested, _ := evaluator.OpaqueAs[int](args)
	n, ok := resize(node, true, requested)
	if !ok {
		return ctx.BuildValue(invalidSize), nil
	}
	return ctx.BuildValue(thumbnailSize(n)), nil
}

// ---------------------------------------------------------------------------
// timesince

type timesince struct{ evaluator.BaseFormatter }

// Apply renders an epoch-millisecond timestamp relative to the render clock.
func (f *timesince) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	if _, ok := node.(*value.Number); !ok {
		return ctx.BuildValue("Invalid date."), nil
	}
	millis := value.Int(node)
	then := time.UnixMilli(millis)
	var sb strings.Builder
	sb.WriteString(`<span class="timesince" data-date="` + strconv.FormatInt(millis, 10) + `">`)
	sb.WriteString(humanize.RelTime(then, ctx.Time(), "ago", "from now"))
	sb.WriteString(`</span>`)
	return ctx.BuildValue(sb.String()), nil
}

// ---------------------------------------------------------------------------
// video

type video struct{ evaluator.BaseFormatter }

func (f *video) Validate(args *evaluator.Arguments) error {
	for _, arg := range args.Args() {
		if arg != "load-false" && arg != "color-data" {
			return serrors.NewArgument(f.ID, fmt.Sprintf("'%s' is not an expected value", arg))
		}
	}
	return nil
}

func (f *video) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	oembed := value.Member(node, "oembed")
	colorData := value.Member(node, "colorData")
	assetURL := value.Text(value.Member(node, "assetUrl"))

	loadFalse, useColorData := false, false
	for _, arg := range args.Args() {
		switch arg {
		case "load-false":
			loadFalse = true
		case "color-data":
			useColorData = true
		}
	}

	var sb strings.Builder
	sb.WriteString(`<div class="sqs-video-wrapper" `)
	if loadFalse {
		sb.WriteString(` data-load="false" `)
	}
	sb.WriteString(`data-html="` + escapeAttr(value.Text(value.Member(oembed, "html"))))
	sb.WriteString(`" data-provider-name="` + value.Text(value.Member(oembed, "providerName")) + `">`)

	if value.Truthy(value.Member(node, "overlay")) {
		sb.WriteString(`<div class="sqs-video-overlay`)
		if value.Truthy(value.Member(node, "mainImageId")) || value.Truthy(value.Member(node, "systemDataId")) {
			sb.WriteString(`" style="opacity: 0;">`)
			sb.WriteString(`<img data-load="false" data-src="` + assetURL + `" `)
			sb.WriteString(`data-src="` + assetURL + `" `)
			sb.WriteString(`data-image-dimensions="` + value.Text(value.Member(node, "originalSize")) + `" `)
			sb.WriteString(`data-image-focal-point="` + focalPoint(node) + `" `)
			if useColorData && value.Truthy(colorData) {
				for _, key := range colorPositions {
					sb.WriteString(`data-color-` + strings.ToLower(key) + `="#`)
					sb.WriteString(value.Text(value.Member(colorData, key+"Average")) + `" `)
				}
			}
			sb.WriteString(`/>`)
		} else {
			sb.WriteString(` no-thumb" style="opacity: 0;">`)
		}
		sb.WriteString(`<div class="sqs-video-opaque"> </div><div class="sqs-video-icon"></div>`)
		sb.WriteString(`</div>`)
	}

	sb.WriteString(`</div>`)
	return ctx.BuildValue(sb.String()), nil
}

// localeTag parses a BCP 47 tag, falling back to English.
func localeTag(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return language.English
	}
	return tag
}
