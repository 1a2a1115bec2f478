// Package util junta helpers chicos compartidos entre capas.
package util

import "strings"

// MaskEmail enmascara un email para logs y auditoría: conserva la
// primera letra del usuario y del dominio, más el TLD. Nunca devuelve
// el email completo; entradas sin @ se reducen a extremos o asteriscos.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		switch {
		case s == "":
			return ""
		case len(s) <= 3:
			return "***"
		default:
			return s[:1] + "…" + s[len(s)-1:]
		}
	}

	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	parts := strings.Split(dom, ".")
	if len(parts) > 0 && len(parts[0]) > 1 {
		parts[0] = parts[0][:1] + "…"
	}
	return user + "@" + strings.Join(parts, ".")
}
