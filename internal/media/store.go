// Package media keeps uploaded catalog images on disk. Paths handed out and
// accepted by Store are slash-separated and relative to its root, e.g.
// "uploads/ct1/shirt_1a2b3c4d.jpg".
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/nfnt/resize"
)

const (
	UploadsDir      = "uploads"
	PlaceholderPath = UploadsDir + "/placeholder.jpg"

	defaultMaxSize  = 10 << 20
	defaultMaxWidth = 1200
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image is too large")
	ErrBadPath         = errors.New("invalid image path")
)

var allowedTypes = []string{"image/png", "image/jpeg", "image/webp"}

type Store struct {
	root     string
	maxSize  int64
	maxWidth uint
}

func NewStore(root string) *Store {
	return &Store{root: root, maxSize: defaultMaxSize, maxWidth: defaultMaxWidth}
}

func (s *Store) Root() string { return s.root }

// FullPath maps a stored relative path onto the filesystem, refusing
// anything that would escape the root.
func (s *Store) FullPath(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" || strings.HasPrefix(rel, "/") || strings.Contains(rel, `\`) {
		return "", ErrBadPath
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrBadPath
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Exists reports whether rel names a regular file under the root.
func (s *Store) Exists(rel string) bool {
	full, err := s.FullPath(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// NextFolder creates and returns the next free folder name of the form
// <prefix><n> inside the uploads directory.
func (s *Store) NextFolder(prefix string) (string, error) {
	base := filepath.Join(s.root, UploadsDir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", err
	}
	next := 1
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), prefix))
		if err == nil && n >= next {
			next = n + 1
		}
	}
	name := prefix + strconv.Itoa(next)
	if err := os.MkdirAll(filepath.Join(base, name), 0o755); err != nil {
		return "", err
	}
	return name, nil
}

// Save validates and stores an uploaded image in the folder and returns its
// relative path. Wide png and jpeg images are scaled down.
func (s *Store) Save(folder, filename string, r io.Reader) (string, error) {
	if folder == "" || strings.ContainsAny(folder, `/\`) || strings.Contains(folder, "..") {
		return "", ErrBadPath
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	if !mtype.Is("image/webp") {
		if data, err = s.shrink(data, mtype.String()); err != nil {
			return "", err
		}
	}

	base := slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	if base == "" {
		base = "image"
	}
	name := base + "_" + uuid.NewString()[:8] + mtype.Extension()

	dir := filepath.Join(s.root, UploadsDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", err
	}
	rel := path.Join(UploadsDir, folder, name)
	slog.Info("Saved upload", "path", rel, "bytes", len(data))
	return rel, nil
}

func (s *Store) shrink(data []byte, mime string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	if uint(img.Bounds().Dx()) <= s.maxWidth {
		return data, nil
	}

	resized := resize.Resize(s.maxWidth, 0, img, resize.Lanczos3)
	var buf bytes.Buffer
	if mime == "image/png" {
		err = png.Encode(&buf, resized)
	} else {
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Delete removes a stored file. Missing files are not an error.
func (s *Store) Delete(rel string) {
	full, err := s.FullPath(rel)
	if err != nil {
		return
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to delete file", "path", rel, "error", err)
		return
	}
	slog.Info("Deleted file", "path", rel)
}

// RemoveFolder deletes a category folder with everything in it.
func (s *Store) RemoveFolder(folder string) {
	if folder == "" || strings.ContainsAny(folder, `/\`) || strings.Contains(folder, "..") {
		return
	}
	if err := os.RemoveAll(filepath.Join(s.root, UploadsDir, folder)); err != nil {
		slog.Warn("Failed to remove folder", "folder", folder, "error", err)
	}
}

// EnsurePlaceholder writes the grey placeholder image shown for items
// without photos, unless it already exists.
func (s *Store) EnsurePlaceholder() (string, error) {
	if s.Exists(PlaceholderPath) {
		return PlaceholderPath, nil
	}
	full, _ := s.FullPath(PlaceholderPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}

	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{0xf3, 0xf4, 0xf6, 0xff}}, image.Point{}, draw.Src)
	border := &image.Uniform{C: color.RGBA{0x9c, 0xa3, 0xaf, 0xff}}
	draw.Draw(img, image.Rect(150, 110, 250, 190), border, image.Point{}, draw.Src)

	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	slog.Info("Created placeholder image", "path", PlaceholderPath)
	return PlaceholderPath, nil
}
