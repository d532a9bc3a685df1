// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package roles

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed menus.yaml
var menusYAML []byte

// MenuItem is a single entry in the private-area navigation.
type MenuItem struct {
	Label string `yaml:"label" json:"label"`
	Path  string `yaml:"path" json:"path"`
}

// defaultMenuKey holds the menu shown to principals with an unknown role.
const defaultMenuKey = "default"

var menus = mustLoadMenus(menusYAML)

// Menu returns the navigation menu for a role. The returned slice is a copy
// and may be modified by the caller.
func Menu(role string) []MenuItem {
	key := defaultMenuKey
	if r, ok := Parse(role); ok {
		key = string(r)
	}
	items := menus[key]
	out := make([]MenuItem, len(items))
	copy(out, items)
	return out
}

func mustLoadMenus(raw []byte) map[string][]MenuItem {
	m, err := loadMenus(raw)
	if err != nil {
		panic(err)
	}
	return m
}

// loadMenus parses the menu table and checks that every role and the
// default entry are present.
func loadMenus(raw []byte) (map[string][]MenuItem, error) {
	var m map[string][]MenuItem
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("roles: parse menus: %w", err)
	}
	if len(m[defaultMenuKey]) == 0 {
		return nil, fmt.Errorf("roles: menus: missing %q entry", defaultMenuKey)
	}
	for _, r := range All {
		if len(m[string(r)]) == 0 {
			return nil, fmt.Errorf("roles: menus: no menu for role %s", r)
		}
	}
	return m, nil
}
