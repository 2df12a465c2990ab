package http

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"eyecheck-web/internal/bootstrap"
	"eyecheck-web/internal/transport/http/handler"
	"eyecheck-web/internal/transport/http/middleware"
	"eyecheck-web/web"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.SetHTMLTemplate(template.Must(web.Templates()))
	router.StaticFS("/static", http.FS(web.Static()))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	formHandler := handler.NewFormHandler(app.Sessions, app.Config.Upload.MaxBytes, app.Logger)
	withSession := middleware.Session(
		app.Config.Session.CookieName,
		app.Config.Session.Secret,
		app.Config.SessionTTL(),
		app.Sessions.Discard,
	)

	page := router.Group("/")
	page.Use(withSession)
	page.GET("/", formHandler.Page)
	page.POST("/select", formHandler.Select)
	page.POST("/analyze", formHandler.Analyze)

	v1 := router.Group("/api/v1")
	formGroup := v1.Group("/form")
	formGroup.Use(withSession)
	formGroup.GET("", formHandler.State)
	formGroup.POST("/select", formHandler.APISelect)
	formGroup.POST("/submit", formHandler.APISubmit)

	return router
}
