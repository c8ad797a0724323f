package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/glowdesk/reflow/pkg/models"
)

func testContext() Context {
	return Context{
		Client: &models.Client{
			ID:        "client-1",
			FirstName: "Amara",
			LastName:  "Okafor",
			Email:     "amara@example.com",
			Phones:    []string{"+15551234567"},
		},
		Org: &models.Organization{
			ID:               "org-1",
			Name:             "Glow Aesthetics",
			BookingLink:      "https://book.example.com/glow",
			GoogleReviewLink: "https://g.page/glow/review",
			CustomTokens:     map[string]string{"promo_code": "GLOW20"},
		},
		Appointment: &models.Appointment{
			ID:       "appt-1",
			Type:     "Botox Touch-up",
			StartsAt: time.Date(2026, time.March, 9, 14, 30, 0, 0, time.UTC),
		},
	}
}

func TestRenderReplacesTokens(t *testing.T) {
	out := Render("Hi {{first_name}}, see you at {{business_name}} on {{appointment_date}} at {{appointment_time}} for {{appointment_type}}.", testContext())

	assert.Equal(t,
		"Hi Amara, see you at Glow Aesthetics on Monday, March 9, 2026 at 2:30 PM for Botox Touch-up.",
		out)
}

func TestRenderClientTokens(t *testing.T) {
	ctx := testContext()

	assert.Equal(t, "Amara Okafor", Render("{{client_name}}", ctx))
	assert.Equal(t, "+15551234567", Render("{{phone}}", ctx))
	assert.Equal(t, "amara@example.com", Render("{{email}}", ctx))
	assert.Equal(t, "https://book.example.com/glow", Render("{{booking_link}}", ctx))
	assert.Equal(t, "https://g.page/glow/review", Render("{{google_review_link}}", ctx))
}

func TestRenderCustomOrgTokens(t *testing.T) {
	out := Render("Use code {{promo_code}} at checkout", testContext())

	assert.Equal(t, "Use code GLOW20 at checkout", out)
}

func TestRenderMissingNameFallsBack(t *testing.T) {
	ctx := testContext()
	ctx.Client.FirstName = ""
	ctx.Client.LastName = ""

	assert.Equal(t, "Hi there!", Render("Hi {{first_name}}!", ctx))
	assert.Equal(t, "Hi there!", Render("Hi {{client_name}}!", ctx))
	assert.Equal(t, "Bye !", Render("Bye {{last_name}}!", ctx))
}

func TestRenderUnknownTokensLeftVerbatim(t *testing.T) {
	out := Render("Hi {{first_name}}, your {{mystery_token}} is ready", testContext())

	assert.Equal(t, "Hi Amara, your {{mystery_token}} is ready", out)
}

func TestRenderTotalOverDegenerateContexts(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		ctx  Context
		want string
	}{
		{
			name: "nil everything",
			tmpl: "Hi {{first_name}}, book at {{booking_link}}",
			ctx:  Context{},
			want: "Hi there, book at ",
		},
		{
			name: "no appointment",
			tmpl: "See you {{appointment_date}}",
			ctx:  Context{Client: &models.Client{FirstName: "Li"}},
			want: "See you ",
		},
		{
			name: "empty template",
			tmpl: "",
			ctx:  Context{},
			want: "",
		},
		{
			name: "no tokens",
			tmpl: "plain text",
			ctx:  Context{},
			want: "plain text",
		},
		{
			name: "unbalanced braces",
			tmpl: "odd {{first_name",
			ctx:  Context{},
			want: "odd {{first_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tmpl, tt.ctx))
		})
	}
}

func TestRenderRepeatedTokens(t *testing.T) {
	out := Render("{{first_name}} {{first_name}}", testContext())

	assert.Equal(t, "Amara Amara", out)
}
