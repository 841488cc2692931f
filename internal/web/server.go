package web

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"

	"clothshop/internal/auth"
	"clothshop/internal/service"
)

const (
	defaultCurrency = "RUB"
	adminSessionTTL = 12 * time.Hour
	maxUploadMemory = 32 << 20
)

// Deps are the collaborators of the web surface.
type Deps struct {
	Catalog      *service.CatalogService
	Admin        *service.AdminService
	Orders       *service.OrderService
	Currency     *service.CurrencyService
	Moderation   *service.ModerationService
	Policy       *auth.Policy
	Tokens       *auth.Tokens
	Sessions     sessions.Store
	StaticPath   string
	PasswordHash string
}

type Server struct {
	catalog      *service.CatalogService
	admin        *service.AdminService
	orders       *service.OrderService
	currency     *service.CurrencyService
	moderation   *service.ModerationService
	policy       *auth.Policy
	tokens       *auth.Tokens
	sessions     sessions.Store
	templates    *TemplateCache
	staticPath   string
	passwordHash string
}

func NewServer(d Deps) (*Server, error) {
	templates, err := NewTemplateCache()
	if err != nil {
		return nil, err
	}
	return &Server{
		catalog:      d.Catalog,
		admin:        d.Admin,
		orders:       d.Orders,
		currency:     d.Currency,
		moderation:   d.Moderation,
		policy:       d.Policy,
		tokens:       d.Tokens,
		sessions:     d.Sessions,
		templates:    templates,
		staticPath:   d.StaticPath,
		passwordHash: d.PasswordHash,
	}, nil
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = maxUploadMemory
	r.Use(RequestLogger(), gin.CustomRecovery(s.recovered), SecurityHeaders())

	r.Static("/static", s.staticPath)
	r.NoRoute(func(c *gin.Context) {
		s.renderError(c, http.StatusNotFound, "Страница не найдена")
	})

	r.GET("/", s.home)
	r.GET("/category/:id", s.category)
	r.GET("/about", s.about)
	r.GET("/set_currency/:code", s.setCurrency)

	api := r.Group("/api")
	api.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))
	api.GET("/categories", s.apiCategories)

	r.GET("/admin/login", s.loginForm)
	r.POST("/admin/login", s.login)
	r.GET("/admin/magic", s.magicLogin)
	r.GET("/admin/logout", s.logout)

	admin := r.Group("/", s.RequireAdmin())
	admin.GET("/add_category", s.addCategoryForm)
	admin.POST("/add_category", s.addCategory)
	admin.GET("/edit_category/:id", s.editCategoryForm)
	admin.POST("/edit_category/:id", s.editCategory)
	admin.POST("/delete_category/:id", s.deleteCategory)
	admin.GET("/add_item", s.addItemForm)
	admin.POST("/add_item", s.addItem)
	admin.GET("/edit_item/:id", s.editItemForm)
	admin.POST("/edit_item/:id", s.editItem)
	admin.POST("/delete_item/:id", s.deleteItem)
	admin.GET("/admin/orders", s.listOrders)
	admin.POST("/admin/orders/:id/status", s.setOrderStatus)
	admin.GET("/admin/orders/export.xlsx", s.exportOrders)
	admin.GET("/manage_bans", s.manageBans)
	admin.POST("/manage_bans/ban", s.ban)
	admin.POST("/manage_bans/unban/:id", s.unban)

	return r
}

// page collects the values every template expects next to the page data.
func (s *Server) page(c *gin.Context, data gin.H) gin.H {
	session := s.session(c)
	if data == nil {
		data = gin.H{}
	}
	data["Flashes"] = flashes(session)
	data["SelectedCurrency"] = s.selectedCurrency(session)
	data["IsAdmin"] = s.adminClaims(session) != nil
	data["CsrfField"] = csrf.TemplateField(c.Request)

	currencies, err := s.catalog.ListCurrencies(c.Request.Context())
	if err != nil {
		slog.Error("List currencies failed", "error", err)
	}
	data["Currencies"] = currencies

	s.save(c, session)
	return data
}

func (s *Server) render(c *gin.Context, status int, name string, data gin.H) {
	data = s.page(c, data)
	var buf bytes.Buffer
	if err := s.templates.Render(&buf, name, data); err != nil {
		slog.Error("Render template failed", "template", name, "error", err)
		c.String(http.StatusInternalServerError, "Внутренняя ошибка сервера")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) renderError(c *gin.Context, status int, message string) {
	s.render(c, status, "error.html", gin.H{"Code": status, "Message": message})
}

func (s *Server) recovered(c *gin.Context, err any) {
	slog.Error("Handler panicked", "path", c.Request.URL.Path, "error", err)
	s.renderError(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
	c.Abort()
}

// fail maps a service error to a flash and a redirect. Validation errors
// go back to the form, missing records and storage errors go home.
func (s *Server) fail(c *gin.Context, back, notFound string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrConflict):
		s.redirectWithFlash(c, back, "error", validationMessage(err))
	case errors.Is(err, service.ErrNotFound):
		s.redirectWithFlash(c, "/", "error", notFound)
	case errors.Is(err, service.ErrForbidden):
		s.redirectWithFlash(c, "/", "error", "Недостаточно прав")
	default:
		slog.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		s.redirectWithFlash(c, "/", "error", "Произошла ошибка. Попробуйте снова.")
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrConflict):
		return "Такая запись уже существует"
	case errors.Is(err, service.ErrEmptyCart):
		return "Корзина пуста"
	default:
		return "Некорректные данные"
	}
}

func (s *Server) selectedCurrency(session *sessions.Session) string {
	if code, ok := session.Values[keyCurrency].(string); ok && code != "" {
		return code
	}
	return defaultCurrency
}

// sameOriginReferer returns the referring path when it points back at this
// host.
func sameOriginReferer(c *gin.Context) string {
	ref, err := url.Parse(c.Request.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != c.Request.Host) {
		return "/"
	}
	return ref.RequestURI()
}
