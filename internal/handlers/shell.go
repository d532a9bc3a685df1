// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/http"

	"autotaller/internal/middleware"
	"autotaller/internal/render"
)

// Shell serves the private area frame: who is signed in, their menu and the
// page they asked for. Access control and the root redirect are done by
// middleware.Shell before this runs.
type Shell struct{}

// Page answers GET /private/*.
func (Shell) Page(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, map[string]any{
		"user": middleware.PrincipalFromCtx(r.Context()),
		"menu": middleware.MenuFromCtx(r.Context()),
		"path": r.URL.Path,
	})
}
