package frontend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/refshelf/internal/backend/auth"
	"github.com/jo-hoe/refshelf/internal/backend/database"
	"github.com/jo-hoe/refshelf/internal/backend/imaging"
	"github.com/jo-hoe/refshelf/internal/core"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	mimePNG = "image/png"

	dashboardContextKey = "dashboard"
	tokenContextKey     = "token"

	gateWaitTimeout = 5 * time.Second
	// multipart overhead on top of the largest accepted image
	maxSubmitBody = "40M"
)

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
	template    *Template
	limiter     *RateLimiter
	thumbnails  *ThumbnailCache
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
		template:    newTemplate(),
		limiter:     NewRateLimiter(coreService.Redis(), config.SigninRateLimit.MaxAttempts, config.SigninRateLimit.Window),
		thumbnails:  NewThumbnailCache(coreService.Redis(), coreService.Fetcher(), config.UI.ThumbnailWidth, config.UI.ThumbnailCacheTTL),
	}
}

type credentialsForm struct {
	Email    string `form:"email" validate:"required"`
	Password string `form:"password" validate:"required"`
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = service.template

	e.GET("/", service.indexHandler)
	e.GET("/signin", service.signInPageHandler)
	e.POST("/signin", service.signInHandler, service.limiter.Middleware)
	e.GET("/signup", service.signUpPageHandler)
	e.POST("/signup", service.signUpHandler, service.limiter.Middleware)
	e.POST("/signout", service.signOutHandler)

	htmx := e.Group("/htmx", service.requireDashboard)
	htmx.GET("/entries", service.htmxGridHandler)
	htmx.POST("/modal/add", service.htmxOpenAddHandler)
	htmx.POST("/modal/edit/:id", service.htmxOpenEditHandler)
	htmx.POST("/modal/close", service.htmxCloseModalHandler)
	htmx.POST("/modal/tags", service.htmxCommitTagHandler)
	htmx.POST("/modal/tags/remove", service.htmxRemoveTagHandler)
	htmx.POST("/modal/submit", service.htmxSubmitModalHandler, middleware.BodyLimit(maxSubmitBody))
	htmx.POST("/entries/:id/copy", service.htmxCopyHandler)
	htmx.POST("/entries/:id/copy-link", service.htmxCopyLinkHandler)
	htmx.GET("/entries/:id/copy-button", service.htmxCopyButtonHandler)
	htmx.GET("/entries/:id/preview", service.htmxOpenPreviewHandler)
	htmx.DELETE("/entries/:id/preview", service.htmxClosePreviewHandler)
	htmx.GET("/entries/:id/thumb", service.htmxThumbnailHandler)

	e.GET("/ws/entries", service.websocketHandler, service.requireDashboard)
	e.GET("/blobs/*", service.blobHandler)
	e.GET("/icon.svg", service.iconHandler)
}

// indexHandler shows the loading view until the session's first
// authentication notification, then the sign in page or the dashboard.
func (service *FrontendService) indexHandler(ctx echo.Context) error {
	token := sessionToken(ctx)
	if token == "" {
		return ctx.Redirect(http.StatusSeeOther, "/signin")
	}

	waitCtx, cancel := context.WithTimeout(ctx.Request().Context(), gateWaitTimeout)
	defer cancel()
	switch service.coreService.Gate(token).Wait(waitCtx) {
	case core.GateLoading:
		return ctx.Render(http.StatusOK, "loading.html", nil)
	case core.GateSignedOut:
		service.clearSessionCookie(ctx)
		return ctx.Redirect(http.StatusSeeOther, "/signin")
	}

	dashboard, err := service.coreService.Dashboard(waitCtx, token)
	if errors.Is(err, core.ErrNotSignedIn) {
		service.clearSessionCookie(ctx)
		return ctx.Redirect(http.StatusSeeOther, "/signin")
	}
	if err != nil {
		slog.Error("indexHandler: failed to open dashboard", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to open dashboard")
	}

	_, user := service.coreService.Gate(token).Status()
	view := dashboardView{
		Search: dashboard.Search(),
		Grid:   newGridView(dashboard),
		Modal:  newModalView(dashboard),
	}
	if user != nil {
		view.Email = user.Email
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "dashboard.html", view)
}

func (service *FrontendService) signInPageHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "signin.html", authView{Heading: "Sign in"})
}

func (service *FrontendService) signUpPageHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "signin.html", authView{Heading: "Sign up", SignUp: true})
}

func (service *FrontendService) bindCredentials(ctx echo.Context) (credentialsForm, error) {
	var form credentialsForm
	if err := ctx.Bind(&form); err != nil {
		return form, err
	}
	return form, ctx.Validate(&form)
}

func (service *FrontendService) signInHandler(ctx echo.Context) error {
	view := authView{Heading: "Sign in"}
	form, err := service.bindCredentials(ctx)
	view.Email = form.Email
	if err != nil {
		view.Error = "Please enter your email and password"
		return ctx.Render(http.StatusBadRequest, "signin.html", view)
	}

	token, err := service.coreService.SignIn(ctx.Request().Context(), form.Email, form.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		view.Error = "Invalid email or password"
		return ctx.Render(http.StatusUnauthorized, "signin.html", view)
	}
	if err != nil {
		slog.Error("signInHandler: failed to sign in", "status", http.StatusInternalServerError, "error", err)
		view.Error = "Sign in failed, please try again"
		return ctx.Render(http.StatusInternalServerError, "signin.html", view)
	}

	service.setSessionCookie(ctx, token)
	return ctx.Redirect(http.StatusSeeOther, "/")
}

func (service *FrontendService) signUpHandler(ctx echo.Context) error {
	view := authView{Heading: "Sign up", SignUp: true}
	form, err := service.bindCredentials(ctx)
	view.Email = form.Email
	if err != nil {
		view.Error = "Please enter your email and password"
		return ctx.Render(http.StatusBadRequest, "signin.html", view)
	}

	token, err := service.coreService.SignUp(ctx.Request().Context(), form.Email, form.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, database.ErrEmailTaken):
		view.Error = err.Error()
		return ctx.Render(http.StatusBadRequest, "signin.html", view)
	case err != nil:
		slog.Error("signUpHandler: failed to sign up", "status", http.StatusInternalServerError, "error", err)
		view.Error = "Sign up failed, please try again"
		return ctx.Render(http.StatusInternalServerError, "signin.html", view)
	}

	service.setSessionCookie(ctx, token)
	return ctx.Redirect(http.StatusSeeOther, "/")
}

func (service *FrontendService) signOutHandler(ctx echo.Context) error {
	if token := sessionToken(ctx); token != "" {
		service.coreService.SignOut(ctx.Request().Context(), token)
	}
	service.clearSessionCookie(ctx)
	return redirectToSignIn(ctx)
}

// requireDashboard resolves the dashboard of the request's session.
func (service *FrontendService) requireDashboard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		token := sessionToken(ctx)
		waitCtx, cancel := context.WithTimeout(ctx.Request().Context(), gateWaitTimeout)
		defer cancel()

		dashboard, err := service.coreService.Dashboard(waitCtx, token)
		if errors.Is(err, core.ErrNotSignedIn) || errors.Is(err, context.DeadlineExceeded) {
			return redirectToSignIn(ctx)
		}
		if err != nil {
			slog.Error("requireDashboard: failed to open dashboard", "status", http.StatusInternalServerError, "error", err)
			return ctx.String(http.StatusInternalServerError, "Failed to open dashboard")
		}

		ctx.Set(dashboardContextKey, dashboard)
		ctx.Set(tokenContextKey, token)
		return next(ctx)
	}
}

func dashboardOf(ctx echo.Context) *core.Dashboard {
	return ctx.Get(dashboardContextKey).(*core.Dashboard)
}

func (service *FrontendService) htmxGridHandler(ctx echo.Context) error {
	dashboard := dashboardOf(ctx)
	dashboard.SetSearch(ctx.QueryParam("search"))
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "grid", newGridView(dashboard))
}

func (service *FrontendService) htmxOpenAddHandler(ctx echo.Context) error {
	dashboard := dashboardOf(ctx)
	dashboard.OpenAdd()
	return ctx.Render(http.StatusOK, "modal", newModalView(dashboard))
}

func (service *FrontendService) htmxOpenEditHandler(ctx echo.Context) error {
	dashboard := dashboardOf(ctx)
	if _, err := dashboard.OpenEdit(ctx.Param("id")); err != nil {
		slog.Warn("htmxOpenEditHandler: entry not available", "status", http.StatusNotFound, "entry_id", ctx.Param("id"))
		return ctx.String(http.StatusNotFound, "Entry not found")
	}
	return ctx.Render(http.StatusOK, "modal", newModalView(dashboard))
}

func (service *FrontendService) htmxCloseModalHandler(ctx echo.Context) error {
	dashboard := dashboardOf(ctx)
	dashboard.CloseModal()
	return ctx.Render(http.StatusOK, "modal", newModalView(dashboard))
}

func (service *FrontendService) activeForm(ctx echo.Context) (core.EntryForm, error) {
	form := dashboardOf(ctx).ActiveForm()
	if form == nil {
		return nil, ctx.String(http.StatusConflict, "No form is open")
	}
	return form, nil
}

// htmxCommitTagHandler is the tag input's Enter key. The title travels along
// with the enclosing form and is kept.
func (service *FrontendService) htmxCommitTagHandler(ctx echo.Context) error {
	form, err := service.activeForm(ctx)
	if form == nil {
		return err
	}

	params, err := ctx.FormParams()
	if err != nil {
		return ctx.String(http.StatusBadRequest, "Invalid form")
	}
	if _, ok := params["title"]; ok {
		form.SetTitle(params.Get("title"))
	}
	form.SetTagInput(params.Get("tagInput"))
	form.CommitTag()
	return ctx.Render(http.StatusOK, "modal-tags", form.State())
}

func (service *FrontendService) htmxRemoveTagHandler(ctx echo.Context) error {
	form, err := service.activeForm(ctx)
	if form == nil {
		return err
	}
	form.RemoveTag(ctx.QueryParam("tag"))
	return ctx.Render(http.StatusOK, "modal-tags", form.State())
}

func (service *FrontendService) htmxSubmitModalHandler(ctx echo.Context) error {
	dashboard := dashboardOf(ctx)
	form, err := service.activeForm(ctx)
	if form == nil {
		return err
	}

	form.SetTitle(ctx.FormValue("title"))
	image, err := readImageFile(ctx)
	if err != nil {
		slog.Error("htmxSubmitModalHandler: failed to read uploaded file",
			"status", http.StatusBadRequest, "error", err)
		return ctx.String(http.StatusBadRequest, "Failed to read uploaded file")
	}
	if image != nil {
		form.SetImage(image)
	}

	err = dashboard.SubmitModal(ctx.Request().Context())
	if errors.Is(err, core.ErrFormBusy) {
		return ctx.String(http.StatusConflict, "Form is already submitted")
	}
	if err != nil && !isValidationError(err) {
		slog.Error("htmxSubmitModalHandler: failed to save entry", "owner_id", dashboard.OwnerID(), "error", err)
	}

	modal := newModalView(dashboard)
	if modal.Open {
		return service.renderParts(ctx, http.StatusOK, part{"modal", modal})
	}
	grid := newGridView(dashboard)
	grid.OOB = true
	return service.renderParts(ctx, http.StatusOK, part{"modal", modal}, part{"grid", grid})
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrTitleRequired) || errors.Is(err, core.ErrImageRequired) || errors.Is(err, core.ErrNotImage) ||
		errors.Is(err, core.ErrImageTooLarge)
}

// readImageFile returns the uploaded image, or nil when none was chosen.
func readImageFile(ctx echo.Context) (*core.ImageFile, error) {
	file, err := ctx.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if file.Filename == "" || file.Size == 0 {
		return nil, nil
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("readImageFile: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	// one byte past the limit lets validation reject oversized files
	data, err := io.ReadAll(io.LimitReader(src, core.MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	return &core.ImageFile{
		Filename:    file.Filename,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Data:        data,
	}, nil
}

func (service *FrontendService) cardOf(ctx echo.Context) (*core.EntryCard, error) {
	card := dashboardOf(ctx).Card(ctx.Param("id"))
	if card == nil {
		slog.Warn("cardOf: entry not available", "status", http.StatusNotFound, "entry_id", ctx.Param("id"))
		return nil, ctx.String(http.StatusNotFound, "Entry not found")
	}
	return card, nil
}

// htmxCopyHandler copies the image to the clipboard. The result is shown on
// the button either way.
func (service *FrontendService) htmxCopyHandler(ctx echo.Context) error {
	card, err := service.cardOf(ctx)
	if card == nil {
		return err
	}
	_ = card.Copy(ctx.Request().Context())
	return ctx.Render(http.StatusOK, "copy-button", newCopyButtonView(card))
}

func (service *FrontendService) htmxCopyLinkHandler(ctx echo.Context) error {
	card, err := service.cardOf(ctx)
	if card == nil {
		return err
	}
	_ = card.CopyLink(ctx.Request().Context())
	return ctx.Render(http.StatusOK, "copy-button", newCopyButtonView(card))
}

func (service *FrontendService) htmxCopyButtonHandler(ctx echo.Context) error {
	card, err := service.cardOf(ctx)
	if card == nil {
		return err
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "copy-button", newCopyButtonView(card))
}

func (service *FrontendService) htmxOpenPreviewHandler(ctx echo.Context) error {
	card, err := service.cardOf(ctx)
	if card == nil {
		return err
	}
	card.OpenPreview()
	return ctx.Render(http.StatusOK, "preview", card.Entry())
}

func (service *FrontendService) htmxClosePreviewHandler(ctx echo.Context) error {
	card, err := service.cardOf(ctx)
	if card == nil {
		return err
	}
	card.ClosePreview()
	return ctx.Render(http.StatusOK, "preview", nil)
}

func (service *FrontendService) htmxThumbnailHandler(ctx echo.Context) error {
	card, err := service.cardOf(ctx)
	if card == nil {
		return err
	}
	entry := card.Entry()
	thumbnail, err := service.thumbnails.Get(ctx.Request().Context(), entry.ID, entry.ImagePath, entry.ImageURL)
	if err != nil || len(thumbnail) == 0 {
		slog.Warn("htmxThumbnailHandler: thumbnail not available",
			"status", http.StatusNotFound, "entry_id", entry.ID, "error", err)
		return ctx.String(http.StatusNotFound, "Thumbnail not available")
	}
	ctx.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return ctx.Blob(http.StatusOK, mimePNG, thumbnail)
}

func (service *FrontendService) blobHandler(ctx echo.Context) error {
	blobPath := ctx.Param("*")
	data, err := service.coreService.ReadBlob(blobPath)
	if err != nil {
		slog.Warn("blobHandler: blob not available", "status", http.StatusNotFound, "path", blobPath, "error", err)
		return ctx.String(http.StatusNotFound, "Blob not found")
	}

	contentType := http.DetectContentType(data)
	if format, ok := imaging.DetectImage(data); ok && format == "svg" {
		contentType = "image/svg+xml"
	}
	// blob paths carry their upload time and never change
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, contentType, data)
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}

type part struct {
	name string
	data any
}

func (service *FrontendService) renderParts(ctx echo.Context, status int, parts ...part) error {
	var buf bytes.Buffer
	for _, p := range parts {
		if err := service.template.templates.ExecuteTemplate(&buf, p.name, p.data); err != nil {
			slog.Error("renderParts: failed to render template", "template", p.name, "error", err)
			return ctx.String(http.StatusInternalServerError, "Failed to render page")
		}
	}
	return ctx.HTMLBlob(status, buf.Bytes())
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
