package frontend

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const sessionCookieName = "refshelf_session"

func sessionToken(ctx echo.Context) string {
	cookie, err := ctx.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (service *FrontendService) setSessionCookie(ctx echo.Context, token string) {
	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(service.config.Session.TTL / time.Second),
		HttpOnly: true,
		Secure:   strings.HasPrefix(service.config.PublicURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
}

func (service *FrontendService) clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectToSignIn sends htmx requests through HX-Redirect and everything else through a 303.
func redirectToSignIn(ctx echo.Context) error {
	if ctx.Request().Header.Get("HX-Request") == "true" {
		ctx.Response().Header().Set("HX-Redirect", "/signin")
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.Redirect(http.StatusSeeOther, "/signin")
}
