package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"clothshop/internal/db"
	"clothshop/internal/models"
	"clothshop/internal/repo"
)

const categoryFolderPrefix = "ct"

// characters rejected in category names
const badCategoryChars = `<>:"/\|?*`

// ImageStore is the file storage used for category and item images.
type ImageStore interface {
	FileChecker
	NextFolder(prefix string) (string, error)
	Save(folder, filename string, r io.Reader) (string, error)
	Delete(path string)
	RemoveFolder(folder string)
}

type Upload struct {
	Filename string
	Body     io.Reader
}

// ItemInput is an item form. Prices are raw field values keyed by currency
// id; blank or malformed ones are skipped.
type ItemInput struct {
	CategoryID    int64
	Name          string
	Description   string
	Sizes         string
	StockQuantity int
	Prices        map[int64]string
	Images        []Upload
	PrimaryImage  int
	ReplaceImages bool
}

// AdminService owns catalog writes made from the web admin.
type AdminService struct {
	db         *db.DB
	categories *repo.CategoryRepo
	items      *repo.ItemRepo
	currencies *repo.CurrencyRepo
	files      ImageStore
}

func NewAdminService(d *db.DB, files ImageStore) *AdminService {
	return &AdminService{
		db:         d,
		categories: repo.NewCategoryRepo(d),
		items:      repo.NewItemRepo(d),
		currencies: repo.NewCurrencyRepo(d),
		files:      files,
	}
}

func validateCategoryName(name string) error {
	if name == "" {
		return validationf("category name is required")
	}
	if strings.ContainsAny(name, badCategoryChars) {
		return validationf("category name contains forbidden characters")
	}
	return nil
}

func (s *AdminService) checkNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.categories.CategoryByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup category %q: %w", name, err)
	}
	if existing.ID != selfID {
		return fmt.Errorf("%w: category %q already exists", ErrConflict, name)
	}
	return nil
}

func (s *AdminService) saveImage(folder string, up *Upload) (string, error) {
	path, err := s.files.Save(folder, up.Filename, up.Body)
	if err != nil {
		return "", validationf("image %s: %v", up.Filename, err)
	}
	return path, nil
}

// CreateCategory allocates a fresh storage folder for the category and saves
// the optional cover image into it.
func (s *AdminService) CreateCategory(ctx context.Context, name string, image *Upload) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if err := validateCategoryName(name); err != nil {
		return nil, err
	}
	if err := s.checkNameFree(ctx, name, 0); err != nil {
		return nil, err
	}

	folder, err := s.files.NextFolder(categoryFolderPrefix)
	if err != nil {
		return nil, fmt.Errorf("allocate category folder: %w", err)
	}

	category := &models.Category{Name: name, FolderName: folder}
	if image != nil {
		if category.ImagePath, err = s.saveImage(folder, image); err != nil {
			s.files.RemoveFolder(folder)
			return nil, err
		}
	}

	if err := s.categories.CreateCategory(ctx, category); err != nil {
		s.files.RemoveFolder(folder)
		return nil, fmt.Errorf("create category: %w", err)
	}
	slog.Info("Category created", "id", category.ID, "name", name, "folder", folder)
	return category, nil
}

// UpdateCategory renames the category and, when image is set, replaces its
// cover image.
func (s *AdminService) UpdateCategory(ctx context.Context, id int64, name string, image *Upload) (*models.Category, error) {
	category, err := s.categories.CategoryByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "category", id)
	}
	name = strings.TrimSpace(name)
	if err := validateCategoryName(name); err != nil {
		return nil, err
	}
	if err := s.checkNameFree(ctx, name, id); err != nil {
		return nil, err
	}

	oldImage := category.ImagePath
	category.Name = name
	if image != nil {
		if category.ImagePath, err = s.saveImage(category.FolderName, image); err != nil {
			return nil, err
		}
	}

	if err := s.categories.UpdateCategory(ctx, category); err != nil {
		if category.ImagePath != oldImage {
			s.files.Delete(category.ImagePath)
		}
		return nil, fmt.Errorf("update category %d: %w", id, err)
	}
	if oldImage != "" && category.ImagePath != oldImage {
		s.files.Delete(oldImage)
	}
	return category, nil
}

// DeleteCategory removes the category with its items, images and prices,
// then the category folder.
func (s *AdminService) DeleteCategory(ctx context.Context, id int64) error {
	category, err := s.categories.CategoryByID(ctx, id)
	if err != nil {
		return notFound(err, "category", id)
	}
	deleted, err := s.categories.DeleteCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if !deleted {
		return fmt.Errorf("%w: category %d", ErrNotFound, id)
	}

	s.files.RemoveFolder(category.FolderName)
	slog.Info("Category deleted", "id", id, "name", category.Name)
	return nil
}

func normalizeItem(in *ItemInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Sizes = models.JoinSizes(in.Sizes)
	if in.Name == "" || in.CategoryID <= 0 || in.Sizes == "" {
		return validationf("name, category and sizes are required")
	}
	if in.StockQuantity < 0 {
		return validationf("stock quantity must not be negative")
	}
	for _, size := range models.SplitSizes(in.Sizes) {
		if len(size) > models.MaxSizeBytes {
			return validationf("size %q is longer than %d bytes", size, models.MaxSizeBytes)
		}
	}
	return nil
}

// parsePrices keeps the fields that parse as non-negative numbers. A comma
// decimal separator is accepted.
func parsePrices(currencies []models.Currency, raw map[int64]string) map[int64]float64 {
	prices := make(map[int64]float64)
	for _, c := range currencies {
		value := strings.TrimSpace(raw[c.ID])
		if value == "" {
			continue
		}
		price, err := decimal.NewFromString(strings.Replace(value, ",", ".", 1))
		if err != nil || price.IsNegative() {
			slog.Warn("Invalid price skipped", "currency", c.Name, "value", value)
			continue
		}
		prices[c.ID] = price.InexactFloat64()
	}
	return prices
}

// saveImages stores the uploads, skipping files that are not acceptable
// images. The returned slice keeps upload order.
func (s *AdminService) saveImages(folder string, uploads []Upload, primary int) []models.ItemImage {
	var images []models.ItemImage
	for i := range uploads {
		path, err := s.saveImage(folder, &uploads[i])
		if err != nil {
			slog.Warn("Upload skipped", "file", uploads[i].Filename, "error", err)
			continue
		}
		images = append(images, models.ItemImage{ImagePath: path, IsPrimary: i == primary})
	}
	return images
}

func (s *AdminService) discard(images []models.ItemImage) {
	for _, img := range images {
		s.files.Delete(img.ImagePath)
	}
}

func (s *AdminService) CreateItem(ctx context.Context, in ItemInput) (*models.Item, error) {
	if err := normalizeItem(&in); err != nil {
		return nil, err
	}
	category, err := s.categories.CategoryByID(ctx, in.CategoryID)
	if err != nil {
		return nil, notFound(err, "category", in.CategoryID)
	}
	currencies, err := s.currencies.AllCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	prices := parsePrices(currencies, in.Prices)
	images := s.saveImages(category.FolderName, in.Images, in.PrimaryImage)

	item := &models.Item{
		CategoryID:    in.CategoryID,
		Name:          in.Name,
		Description:   in.Description,
		Sizes:         in.Sizes,
		StockQuantity: in.StockQuantity,
	}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		items := s.items.Tx(tx)
		if err := items.CreateItem(ctx, item); err != nil {
			return err
		}
		for currencyID, price := range prices {
			if err := items.UpsertPrice(ctx, item.ID, currencyID, price); err != nil {
				return err
			}
		}
		for _, img := range images {
			if err := items.AddImage(ctx, item.ID, img.ImagePath, img.IsPrimary); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discard(images)
		return nil, fmt.Errorf("create item: %w", err)
	}
	slog.Info("Item created", "id", item.ID, "name", item.Name, "images", len(images), "prices", len(prices))
	return item, nil
}

// UpdateItem saves the form over an existing item. New images are added to
// the existing ones unless ReplaceImages is set.
func (s *AdminService) UpdateItem(ctx context.Context, id int64, in ItemInput) (*models.Item, error) {
	if _, err := s.items.ItemByID(ctx, id); err != nil {
		return nil, notFound(err, "item", id)
	}
	if err := normalizeItem(&in); err != nil {
		return nil, err
	}
	category, err := s.categories.CategoryByID(ctx, in.CategoryID)
	if err != nil {
		return nil, notFound(err, "category", in.CategoryID)
	}
	currencies, err := s.currencies.AllCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	prices := parsePrices(currencies, in.Prices)
	images := s.saveImages(category.FolderName, in.Images, in.PrimaryImage)

	item := &models.Item{
		ID:            id,
		CategoryID:    in.CategoryID,
		Name:          in.Name,
		Description:   in.Description,
		Sizes:         in.Sizes,
		StockQuantity: in.StockQuantity,
	}
	var replaced []models.ItemImage
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		items := s.items.Tx(tx)
		if err := items.UpdateItem(ctx, item); err != nil {
			return err
		}
		for currencyID, price := range prices {
			if err := items.UpsertPrice(ctx, id, currencyID, price); err != nil {
				return err
			}
		}
		if in.ReplaceImages && len(images) > 0 {
			old, err := items.ItemImages(ctx, id)
			if err != nil {
				return err
			}
			if err := items.DeleteImages(ctx, id); err != nil {
				return err
			}
			replaced = old
		}
		for _, img := range images {
			if err := items.AddImage(ctx, id, img.ImagePath, img.IsPrimary); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discard(images)
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	s.discard(replaced)

	saved, err := s.items.ItemByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "item", id)
	}
	return saved, nil
}

func (s *AdminService) DeleteItem(ctx context.Context, id int64) error {
	images, err := s.items.ItemImages(ctx, id)
	if err != nil {
		return fmt.Errorf("list images of item %d: %w", id, err)
	}
	deleted, err := s.items.DeleteItem(ctx, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if !deleted {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	s.discard(images)
	slog.Info("Item deleted", "id", id, "images", len(images))
	return nil
}

// AllCurrencies backs the per-currency price fields of the item forms.
func (s *AdminService) AllCurrencies(ctx context.Context) ([]models.Currency, error) {
	currencies, err := s.currencies.AllCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	return currencies, nil
}

// CategoryItemCount is shown before a category delete.
func (s *AdminService) CategoryItemCount(ctx context.Context, id int64) (int, error) {
	n, err := s.items.CountItems(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("count items of category %d: %w", id, err)
	}
	return n, nil
}
