// Package imaging converts product images to the canonical stored format.
package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"path"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/judyrop/catalog-backend/pkg/metrics"
)

// CanonicalExt is the extension of every normalized image.
const CanonicalExt = ".webp"

const (
	DefaultMaxWidth = 1200
	DefaultQuality  = 80
)

var ErrImageDecode = errors.New("image could not be decoded")

// DecodeError reports bytes that are not a supported image.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrImageDecode, e.Err}
}

// Source is the incoming value of a product's image attribute: either a
// fresh upload or a reference to a file already in storage.
type Source interface {
	isSource()
}

type Uploaded struct {
	Filename string
	Data     []byte
}

type StoredPath string

func (Uploaded) isSource()   {}
func (StoredPath) isSource() {}

// Current is the image state a product already has in the database.
type Current struct {
	Ref    string
	Digest string
}

// Result is the image state to persist. Written is false on every no-op path.
type Result struct {
	Ref     string
	Digest  string
	Written bool
}

type Options struct {
	MaxWidth int
	Quality  int
}

type Normalizer struct {
	storage *Storage
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewNormalizer(storage *Storage, opts Options, log *zap.Logger, m *metrics.Metrics) *Normalizer {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	return &Normalizer{storage: storage, opts: opts, log: log, metrics: m}
}

func (n *Normalizer) Storage() *Storage {
	return n.storage
}

// CanonicalRef returns the reference ref is stored under once normalized.
func CanonicalRef(ref string) string {
	dir, file := path.Split(ref)
	return dir + baseName(file) + CanonicalExt
}

// IsCanonical reports whether ref already carries the canonical extension.
func IsCanonical(ref string) bool {
	return strings.EqualFold(path.Ext(ref), CanonicalExt)
}

// Digest is the hex SHA-256 used to recognise a repeated upload.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Normalize decides whether src needs converting and, if so, writes the
// canonical file. Uploads land in dir; stored paths are converted next to
// the original, which is kept. A nil src keeps the current image. The
// written file never replaces one that cur does not own.
func (n *Normalizer) Normalize(cur *Current, src Source, dir string) (Result, error) {
	if cur == nil {
		cur = &Current{}
	}
	keep := Result{Ref: cur.Ref, Digest: cur.Digest}

	switch s := src.(type) {
	case nil:
		return keep, nil

	case Uploaded:
		digest := Digest(s.Data)
		if cur.Ref != "" && cur.Digest == digest {
			n.skip("unchanged_upload", cur.Ref)
			return keep, nil
		}
		ref := n.storage.Available(path.Join(dir, baseName(s.Filename)+CanonicalExt), cur.Ref)
		if err := n.convert(s.Filename, s.Data, ref); err != nil {
			return Result{}, err
		}
		return Result{Ref: ref, Digest: digest, Written: true}, nil

	case StoredPath:
		ref, err := CleanRef(string(s))
		if err != nil {
			return Result{}, err
		}
		if ref == cur.Ref {
			n.skip("unchanged_ref", ref)
			return keep, nil
		}
		if IsCanonical(ref) {
			n.skip("already_canonical", ref)
			return Result{Ref: ref}, nil
		}
		data, err := n.storage.Read(ref)
		if err != nil {
			return Result{}, err
		}
		digest := Digest(data)
		target := n.storage.Available(CanonicalRef(ref), cur.Ref)
		if cur.Ref == target && cur.Digest == digest {
			n.skip("unchanged_source", target)
			return keep, nil
		}
		if err := n.convert(ref, data, target); err != nil {
			return Result{}, err
		}
		return Result{Ref: target, Digest: digest, Written: true}, nil

	default:
		return Result{}, fmt.Errorf("unsupported image source %T", src)
	}
}

func (n *Normalizer) convert(name string, data []byte, ref string) error {
	start := time.Now()
	out, err := n.Encode(name, data)
	if err != nil {
		n.metrics.ObserveImage("failed", 0)
		return err
	}
	if err := n.storage.Write(ref, out); err != nil {
		return err
	}
	took := time.Since(start)
	n.metrics.ObserveImage("normalized", took)
	n.log.Info("image normalized",
		zap.String("source", name),
		zap.String("ref", ref),
		zap.Int("bytes", len(out)),
		zap.Duration("took", took),
	)
	return nil
}

// Encode decodes data, caps its width and re-encodes it as lossy WebP.
// The output depends only on data and the options.
func (n *Normalizer) Encode(name string, data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	img = Resize(img, n.opts.MaxWidth)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, toRGBA(img), &webp.Options{Quality: float32(n.opts.Quality)}); err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (n *Normalizer) skip(reason, ref string) {
	n.metrics.ObserveImage("skipped", 0)
	n.log.Debug("image normalization skipped", zap.String("reason", reason), zap.String("ref", ref))
}

// Resize scales img down to maxWidth keeping its aspect ratio. Images that
// already fit are returned as is.
func Resize(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := int(math.Round(float64(b.Dy()) * float64(maxWidth) / float64(b.Dx())))
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func baseName(filename string) string {
	file := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base := strings.TrimSpace(strings.TrimSuffix(file, path.Ext(file)))
	if base == "" || base == "." || base == "/" {
		return "image"
	}
	return base
}
