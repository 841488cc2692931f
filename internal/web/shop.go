package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clothshop/internal/models"
	"clothshop/internal/service"
)

func (s *Server) home(c *gin.Context) {
	categories, err := s.catalog.ListCategories(c.Request.Context())
	if err != nil {
		slog.Error("List categories failed", "error", err)
		s.renderError(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
		return
	}
	s.render(c, http.StatusOK, "index.html", gin.H{"Categories": categories})
}

func (s *Server) category(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
		return
	}
	category, err := s.catalog.GetCategory(ctx, id)
	if err != nil {
		s.fail(c, "/", "Категория не найдена", err)
		return
	}

	code := s.selectedCurrency(s.session(c))
	items, err := s.catalog.ListItems(ctx, id, code)
	if err != nil {
		s.fail(c, "/", "Категория не найдена", err)
		return
	}
	s.render(c, http.StatusOK, "category.html", gin.H{"Category": category, "Items": items})
}

func (s *Server) about(c *gin.Context) {
	s.render(c, http.StatusOK, "about.html", nil)
}

// setCurrency stores a known currency code in the session and goes back.
func (s *Server) setCurrency(c *gin.Context) {
	code := c.Param("code")
	back := sameOriginReferer(c)

	currency, err := s.currency.CurrencyByCode(c.Request.Context(), code)
	if errors.Is(err, service.ErrNotFound) {
		s.redirectWithFlash(c, back, "error", "Неизвестная валюта")
		return
	}
	if err != nil {
		s.fail(c, back, "", err)
		return
	}

	session := s.session(c)
	session.Values[keyCurrency] = currency.Name
	s.save(c, session)
	c.Redirect(http.StatusSeeOther, back)
}

func (s *Server) apiCategories(c *gin.Context) {
	categories, err := s.catalog.ListCategories(c.Request.Context())
	if err != nil {
		slog.Error("List categories failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	c.JSON(http.StatusOK, categories)
}
