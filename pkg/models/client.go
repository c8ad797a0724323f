package models

import "time"

// ClientStatus is the CRM lifecycle state of a client record.
type ClientStatus string

const (
	ClientStatusLead     ClientStatus = "lead"
	ClientStatusActive   ClientStatus = "active"
	ClientStatusInactive ClientStatus = "inactive"
)

// Client is a clinic customer. The engine reads contact fields and mutates
// the tag set; everything else belongs to the CRUD layer outside this repo.
type Client struct {
	ID        string       `json:"id"         validate:"required"`
	OrgID     string       `json:"org_id"     validate:"required"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Email     string       `json:"email,omitempty"`
	Phones    []string     `json:"phones,omitempty"`
	Status    ClientStatus `json:"status"`
	Tags      []string     `json:"tags,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// FullName joins the first and last name, tolerating either being empty.
func (c *Client) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}

// PrimaryPhone returns the first phone on file, or "" when none exists.
func (c *Client) PrimaryPhone() string {
	if len(c.Phones) == 0 {
		return ""
	}

	return c.Phones[0]
}

// HasTag reports whether the client's tag set contains tag (exact match).
func (c *Client) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}

	return false
}
