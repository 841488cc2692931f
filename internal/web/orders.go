package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tealeg/xlsx"

	"clothshop/internal/models"
	"clothshop/internal/service"
)

const (
	ordersPerPage   = 20
	exportBatchSize = 500
)

func (s *Server) listOrders(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	orders, total, err := s.orders.ListOrders(c.Request.Context(), ordersPerPage, (page-1)*ordersPerPage)
	if err != nil {
		s.fail(c, "/", "", err)
		return
	}
	pages := (total + ordersPerPage - 1) / ordersPerPage
	if pages == 0 {
		pages = 1
	}
	s.render(c, http.StatusOK, "orders.html", gin.H{"Orders": orders, "Page": page, "Pages": pages, "Total": total})
}

func (s *Server) setOrderStatus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
		return
	}
	status := models.OrderStatus(c.PostForm("status"))
	order, err := s.orders.SetOrderStatus(c.Request.Context(), actor(c), id, status)
	switch {
	case errors.Is(err, service.ErrConflict):
		s.redirectWithFlash(c, "/admin/orders", "error", fmt.Sprintf("Заказ #%d уже обработан", id))
		return
	case errors.Is(err, service.ErrNotFound):
		s.redirectWithFlash(c, "/admin/orders", "error", "Заказ не найден")
		return
	case err != nil:
		s.fail(c, "/admin/orders", "", err)
		return
	}
	s.redirectWithFlash(c, "/admin/orders", "success",
		fmt.Sprintf("Заказ #%d: %s", order.ID, strings.ToLower(statusLabel(order.Status))))
}

// exportOrders streams every order as an Excel sheet.
func (s *Server) exportOrders(c *gin.Context) {
	ctx := c.Request.Context()
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Orders")
	if err != nil {
		slog.Error("Create sheet failed", "error", err)
		s.renderError(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
		return
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "UserID", "Items", "Total", "Currency", "Status", "CreatedAt"} {
		header.AddCell().SetValue(h)
	}

	for offset := 0; ; offset += exportBatchSize {
		orders, _, err := s.orders.ListOrders(ctx, exportBatchSize, offset)
		if err != nil {
			slog.Error("Export orders failed", "error", err)
			s.renderError(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
			return
		}
		for _, o := range orders {
			row := sheet.AddRow()
			row.AddCell().SetValue(o.ID)
			row.AddCell().SetValue(o.UserID)
			row.AddCell().SetValue(orderItems(o))
			row.AddCell().SetValue(o.TotalPrice)
			row.AddCell().SetValue(o.CurrencyCode)
			row.AddCell().SetValue(string(o.Status))
			row.AddCell().SetValue(o.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if len(orders) < exportBatchSize {
			break
		}
	}

	c.Header("Content-Disposition", "attachment; filename=orders.xlsx")
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		slog.Error("Write xlsx failed", "error", err)
	}
}

func orderItems(o models.Order) string {
	names := make([]string, 0, len(o.Data.Items))
	for _, line := range o.Data.Items {
		names = append(names, fmt.Sprintf("%s (%s) %s", line.Name, line.Size, line.Price.StringFixed(2)))
	}
	return strings.Join(names, "; ")
}

func (s *Server) manageBans(c *gin.Context) {
	banned, err := s.moderation.ListBanned(c.Request.Context())
	if err != nil {
		s.fail(c, "/", "", err)
		return
	}
	s.render(c, http.StatusOK, "manage_bans.html", gin.H{"Banned": banned})
}

func (s *Server) ban(c *gin.Context) {
	userID, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("user_id")), 10, 64)
	if err != nil {
		s.redirectWithFlash(c, "/manage_bans", "error", "Некорректный ID пользователя")
		return
	}
	banned, err := s.moderation.Ban(c.Request.Context(), actor(c), userID)
	if err != nil {
		s.fail(c, "/manage_bans", "", err)
		return
	}
	if !banned {
		s.redirectWithFlash(c, "/manage_bans", "info", fmt.Sprintf("Пользователь %d уже заблокирован", userID))
		return
	}
	s.redirectWithFlash(c, "/manage_bans", "success", fmt.Sprintf("Пользователь %d заблокирован", userID))
}

func (s *Server) unban(c *gin.Context) {
	userID, ok := paramID(c)
	if !ok {
		s.redirectWithFlash(c, "/manage_bans", "error", "Некорректный ID пользователя")
		return
	}
	removed, err := s.moderation.Unban(c.Request.Context(), actor(c), userID)
	if err != nil {
		s.fail(c, "/manage_bans", "", err)
		return
	}
	if !removed {
		s.redirectWithFlash(c, "/manage_bans", "info", fmt.Sprintf("Пользователь %d не был заблокирован", userID))
		return
	}
	s.redirectWithFlash(c, "/manage_bans", "success", fmt.Sprintf("Пользователь %d разблокирован", userID))
}
