package web

import (
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"clothshop/internal/auth"
	"clothshop/internal/service"
)

func (s *Server) loginForm(c *gin.Context) {
	if s.adminClaims(s.session(c)) != nil {
		c.Redirect(http.StatusSeeOther, "/admin/orders")
		return
	}
	s.render(c, http.StatusOK, "login.html", nil)
}

// login checks a moderator id and the shared admin password.
func (s *Server) login(c *gin.Context) {
	userID, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("user_id")), 10, 64)
	if err != nil || !s.policy.IsModerator(userID) || !auth.CheckPassword(s.passwordHash, c.PostForm("password")) {
		slog.Warn("Admin login rejected", "user_id", c.PostForm("user_id"), "ip", c.ClientIP())
		s.redirectWithFlash(c, "/admin/login", "error", "Неверный ID или пароль")
		return
	}
	s.startAdminSession(c, userID, "")
}

// magicLogin accepts the short-lived link issued by the bot's /weblogin.
func (s *Server) magicLogin(c *gin.Context) {
	claims, err := s.tokens.Verify(c.Query("token"))
	if err != nil || !s.policy.IsModerator(claims.UserID) {
		slog.Warn("Magic link rejected", "ip", c.ClientIP(), "error", err)
		s.redirectWithFlash(c, "/admin/login", "error", "Ссылка недействительна или устарела")
		return
	}
	s.startAdminSession(c, claims.UserID, claims.Username)
}

func (s *Server) startAdminSession(c *gin.Context, userID int64, username string) {
	token, err := s.tokens.Generate(userID, username, adminSessionTTL)
	if err != nil {
		slog.Error("Generate admin token failed", "user_id", userID, "error", err)
		s.redirectWithFlash(c, "/admin/login", "error", "Произошла ошибка. Попробуйте снова.")
		return
	}
	session := s.session(c)
	session.Values[keyAdminToken] = token
	session.AddFlash(Flash{Type: "success", Message: "Вы вошли в админку"})
	s.save(c, session)

	slog.Info("Admin logged in", "user_id", userID)
	c.Redirect(http.StatusSeeOther, "/admin/orders")
}

func (s *Server) logout(c *gin.Context) {
	session := s.session(c)
	delete(session.Values, keyAdminToken)
	session.AddFlash(Flash{Type: "success", Message: "Вы вышли из админки"})
	s.save(c, session)
	c.Redirect(http.StatusSeeOther, "/")
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// formUpload opens the optional single file field. The caller closes it.
func formUpload(c *gin.Context, field string) (*service.Upload, multipart.File, error) {
	header, err := c.FormFile(field)
	if err != nil || header.Filename == "" {
		return nil, nil, nil
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return &service.Upload{Filename: header.Filename, Body: f}, f, nil
}

func (s *Server) addCategoryForm(c *gin.Context) {
	s.render(c, http.StatusOK, "category_form.html", nil)
}

func (s *Server) addCategory(c *gin.Context) {
	upload, f, err := formUpload(c, "image")
	if err != nil {
		s.fail(c, "/add_category", "", err)
		return
	}
	if f != nil {
		defer f.Close()
	}

	category, err := s.admin.CreateCategory(c.Request.Context(), c.PostForm("name"), upload)
	if err != nil {
		s.fail(c, "/add_category", "", err)
		return
	}
	s.redirectWithFlash(c, fmt.Sprintf("/category/%d", category.ID), "success", "Категория успешно добавлена")
}

func (s *Server) editCategoryForm(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
		return
	}
	category, err := s.catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "/", "Категория не найдена", err)
		return
	}
	s.render(c, http.StatusOK, "category_form.html", gin.H{"Category": category})
}

func (s *Server) editCategory(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
		return
	}
	back := fmt.Sprintf("/edit_category/%d", id)
	upload, f, err := formUpload(c, "image")
	if err != nil {
		s.fail(c, back, "", err)
		return
	}
	if f != nil {
		defer f.Close()
	}

	if _, err := s.admin.UpdateCategory(c.Request.Context(), id, c.PostForm("name"), upload); err != nil {
		s.fail(c, back, "Категория не найдена", err)
		return
	}
	s.redirectWithFlash(c, "/", "success", "Категория успешно обновлена")
}

func (s *Server) deleteCategory(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := paramID(c)
	if !ok {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
		return
	}
	items, err := s.admin.CategoryItemCount(ctx, id)
	if err != nil {
		s.fail(c, "/", "Категория не найдена", err)
		return
	}
	if err := s.admin.DeleteCategory(ctx, id); err != nil {
		s.fail(c, "/", "Категория не найдена", err)
		return
	}
	s.redirectWithFlash(c, "/", "success", fmt.Sprintf("Категория удалена, товаров удалено: %d", items))
}

// itemInput reads the item form. The returned closer releases the uploaded
// files.
func itemInput(c *gin.Context) (service.ItemInput, func(), error) {
	in := service.ItemInput{
		Name:          c.PostForm("name"),
		Description:   c.PostForm("description"),
		Sizes:         c.PostForm("sizes"),
		Prices:        make(map[int64]string),
		ReplaceImages: c.PostForm("replace_images") == "true",
	}
	closer := func() {}

	var err error
	if in.CategoryID, err = strconv.ParseInt(c.PostForm("category_id"), 10, 64); err != nil {
		return in, closer, fmt.Errorf("%w: category", service.ErrValidation)
	}
	if raw := strings.TrimSpace(c.DefaultPostForm("stock_quantity", "0")); raw != "" {
		if in.StockQuantity, err = strconv.Atoi(raw); err != nil {
			return in, closer, fmt.Errorf("%w: stock quantity", service.ErrValidation)
		}
	}
	if in.PrimaryImage, err = strconv.Atoi(c.DefaultPostForm("primary_image", "0")); err != nil {
		in.PrimaryImage = 0
	}

	form, err := c.MultipartForm()
	if err != nil {
		// url-encoded forms carry prices only
		for key, values := range c.Request.PostForm {
			addPrice(in.Prices, key, values)
		}
		return in, closer, nil
	}
	for key, values := range form.Value {
		addPrice(in.Prices, key, values)
	}

	var opened []multipart.File
	for _, header := range form.File["images"] {
		if header.Filename == "" {
			continue
		}
		f, err := header.Open()
		if err != nil {
			slog.Warn("Open uploaded image failed", "file", header.Filename, "error", err)
			continue
		}
		opened = append(opened, f)
		in.Images = append(in.Images, service.Upload{Filename: header.Filename, Body: f})
	}
	closer = func() {
		for _, f := range opened {
			f.Close()
		}
	}
	return in, closer, nil
}

// addPrice keeps "price_<currencyID>" fields.
func addPrice(prices map[int64]string, key string, values []string) {
	raw, ok := strings.CutPrefix(key, "price_")
	if !ok || len(values) == 0 {
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	prices[id] = values[0]
}

func (s *Server) itemFormData(c *gin.Context, data gin.H) (gin.H, error) {
	ctx := c.Request.Context()
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	currencies, err := s.admin.AllCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = gin.H{}
	}
	data["Categories"] = categories
	data["AllCurrencies"] = currencies
	if _, ok := data["Prices"]; !ok {
		data["Prices"] = map[int64]string{}
	}
	return data, nil
}

func (s *Server) addItemForm(c *gin.Context) {
	data, err := s.itemFormData(c, nil)
	if err != nil {
		s.fail(c, "/", "", err)
		return
	}
	s.render(c, http.StatusOK, "item_form.html", data)
}

func (s *Server) addItem(c *gin.Context) {
	in, closeFiles, err := itemInput(c)
	defer closeFiles()
	if err != nil {
		s.fail(c, "/add_item", "", err)
		return
	}
	item, err := s.admin.CreateItem(c.Request.Context(), in)
	if err != nil {
		s.fail(c, "/add_item", "Выбранная категория не существует", err)
		return
	}
	s.redirectWithFlash(c, fmt.Sprintf("/category/%d", item.CategoryID), "success", "Товар успешно добавлен!")
}

func (s *Server) editItemForm(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := paramID(c)
	if !ok {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
		return
	}
	item, err := s.catalog.GetItem(ctx, id)
	if err != nil {
		s.fail(c, "/", "Товар не найден", err)
		return
	}
	images, err := s.catalog.GetItemImages(ctx, id)
	if err != nil {
		s.fail(c, "/", "Товар не найден", err)
		return
	}
	prices, err := s.catalog.GetItemPrices(ctx, id)
	if err != nil {
		s.fail(c, "/", "Товар не найден", err)
		return
	}
	priceFields := make(map[int64]string, len(prices))
	for _, p := range prices {
		priceFields[p.CurrencyID] = strconv.FormatFloat(p.Price, 'f', -1, 64)
	}

	data, err := s.itemFormData(c, gin.H{"Item": item, "Images": images, "Prices": priceFields})
	if err != nil {
		s.fail(c, "/", "", err)
		return
	}
	s.render(c, http.StatusOK, "item_form.html", data)
}

func (s *Server) editItem(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
		return
	}
	back := fmt.Sprintf("/edit_item/%d", id)
	in, closeFiles, err := itemInput(c)
	defer closeFiles()
	if err != nil {
		s.fail(c, back, "", err)
		return
	}
	item, err := s.admin.UpdateItem(c.Request.Context(), id, in)
	if err != nil {
		s.fail(c, back, "Товар не найден", err)
		return
	}
	s.redirectWithFlash(c, fmt.Sprintf("/category/%d", item.CategoryID), "success", "Товар успешно обновлен!")
}

func (s *Server) deleteItem(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := paramID(c)
	if !ok {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
		return
	}
	item, err := s.catalog.GetItem(ctx, id)
	if err != nil {
		s.fail(c, "/", "Товар не найден", err)
		return
	}
	if err := s.admin.DeleteItem(ctx, id); err != nil {
		s.fail(c, "/", "Товар не найден", err)
		return
	}
	s.redirectWithFlash(c, fmt.Sprintf("/category/%d", item.CategoryID), "success", "Товар удален")
}
