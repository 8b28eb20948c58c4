package session

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)
	nameRe  = regexp.MustCompile(`(?i)(?:my name is|i am|i'm|this is)\s+([A-Za-z][a-zA-Z'\-]+(?:\s+[A-Z][a-zA-Z'\-]+)?)`)
)

// Contact holds whatever the visitor has volunteered so far.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Complete reports whether every field has been captured.
func (c Contact) Complete() bool {
	return c.Name != "" && c.Email != "" && c.Phone != ""
}

// NextMissing names the first field still to ask for, or "".
func (c Contact) NextMissing() string {
	switch {
	case c.Name == "":
		return "name"
	case c.Email == "":
		return "email"
	case c.Phone == "":
		return "phone"
	default:
		return ""
	}
}

// ExtractContact pulls name, email, and phone mentions out of one message.
// Fields that don't appear come back empty.
func ExtractContact(text string) Contact {
	var c Contact
	if m := nameRe.FindStringSubmatch(text); m != nil {
		c.Name = strings.TrimSpace(m[1])
	}
	c.Email = emailRe.FindString(text)
	if m := phoneRe.FindString(text); m != "" && digitCount(m) >= 7 {
		c.Phone = strings.TrimSpace(m)
	}
	return c
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
