package reminder

import (
	"html"
	"strings"
)

// DefaultCustomerName fills {customer_name} when no display name is known.
const DefaultCustomerName = "Valued Customer"

// Vars are the values substituted into subject and body templates.
type Vars struct {
	SiteName     string
	CustomerName string
	CartItems    string
	CartLink     string
	Email        string
}

// Render replaces the known placeholders in tmpl. Shopper-supplied values
// are HTML-escaped; unknown placeholders are left as written.
func Render(tmpl string, v Vars) string {
	name := v.CustomerName
	if strings.TrimSpace(name) == "" {
		name = DefaultCustomerName
	}
	r := strings.NewReplacer(
		"{site_name}", html.EscapeString(v.SiteName),
		"{customer_name}", html.EscapeString(name),
		"{cart_items}", html.EscapeString(v.CartItems),
		"{cart_link}", html.EscapeString(v.CartLink),
		"{email}", html.EscapeString(v.Email),
	)
	return r.Replace(tmpl)
}

// RenderSubject is Render without escaping, for plain-text subject lines.
func RenderSubject(tmpl string, v Vars) string {
	name := v.CustomerName
	if strings.TrimSpace(name) == "" {
		name = DefaultCustomerName
	}
	r := strings.NewReplacer(
		"{site_name}", v.SiteName,
		"{customer_name}", name,
		"{cart_items}", v.CartItems,
		"{cart_link}", v.CartLink,
		"{email}", v.Email,
	)
	return r.Replace(tmpl)
}
