// Package template renders message templates against client, org, and
// appointment context.
//
// Rendering is total: every recognized {{token}} is replaced with a resolved
// value or a safe fallback, unknown tokens are reproduced verbatim, and no
// input can make Render fail. Message steps depend on that totality; a half
// personalized message beats a crashed workflow.
package template

import (
	"strings"
	"time"

	"github.com/glowdesk/reflow/pkg/models"
)

// Context carries the records a template can reference. Appointment is
// optional; org custom tokens extend the vocabulary per tenant.
type Context struct {
	Client      *models.Client
	Org         *models.Organization
	Appointment *models.Appointment
}

const (
	// fallbackName stands in for a missing client name so greetings still
	// read naturally ("Hi there!").
	fallbackName = "there"

	dateLayout = "Monday, January 2, 2006"
	timeLayout = "3:04 PM"
)

// Render substitutes every occurrence of the token vocabulary in tmpl.
func Render(tmpl string, ctx Context) string {
	if tmpl == "" || !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	pairs := make([]string, 0, 32)
	add := func(token, value string) {
		pairs = append(pairs, "{{"+token+"}}", value)
	}

	add("first_name", fallback(firstName(ctx.Client), fallbackName))
	add("last_name", fallback(lastName(ctx.Client), ""))
	add("client_name", fallback(fullName(ctx.Client), fallbackName))
	add("phone", phone(ctx.Client))
	add("email", email(ctx.Client))

	if ctx.Appointment != nil {
		add("appointment_date", formatInstant(ctx.Appointment.StartsAt, dateLayout))
		add("appointment_time", formatInstant(ctx.Appointment.StartsAt, timeLayout))
		add("appointment_type", ctx.Appointment.Type)
	} else {
		add("appointment_date", "")
		add("appointment_time", "")
		add("appointment_type", "")
	}

	if ctx.Org != nil {
		add("business_name", ctx.Org.Name)
		add("booking_link", ctx.Org.BookingLink)
		add("google_review_link", ctx.Org.GoogleReviewLink)

		for token, value := range ctx.Org.CustomTokens {
			add(token, value)
		}
	} else {
		add("business_name", "")
		add("booking_link", "")
		add("google_review_link", "")
	}

	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}

	return v
}

func firstName(c *models.Client) string {
	if c == nil {
		return ""
	}

	return c.FirstName
}

func lastName(c *models.Client) string {
	if c == nil {
		return ""
	}

	return c.LastName
}

func fullName(c *models.Client) string {
	if c == nil {
		return ""
	}

	return c.FullName()
}

func phone(c *models.Client) string {
	if c == nil {
		return ""
	}

	return c.PrimaryPhone()
}

func email(c *models.Client) string {
	if c == nil {
		return ""
	}

	return c.Email
}

func formatInstant(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(layout)
}
