// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"net/http"

	"autotaller/internal/roles"
)

// Shell gates the private area. Without a principal the request is sent to
// the login route and nothing downstream runs. Otherwise the role's menu is
// placed in the context, and the bare private root is redirected to the
// role's home page.
func Shell(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromCtx(r.Context())
		if p == nil {
			http.Redirect(w, r, roles.LoginRoute, http.StatusSeeOther)
			return
		}

		if roles.IsPrivateRoot(r.URL.Path) {
			http.Redirect(w, r, roles.Home(p.Role), http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), MenuKey, roles.Menu(p.Role))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MenuFromCtx returns the menu selected by Shell, or nil outside the
// private area.
func MenuFromCtx(ctx context.Context) []roles.MenuItem {
	menu, _ := ctx.Value(MenuKey).([]roles.MenuItem)
	return menu
}
