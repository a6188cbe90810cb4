package contact

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	"gitea.jw6.us/james/odoolink/internal/odoo"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Odoo language codes for the site locales. Anything else maps to en_US.
var odooLangs = map[string]string{
	"en": "en_US",
	"es": "es_MX",
	"fr": "fr_FR",
}

const defaultLang = "en_US"

// Form is the contact data submitted from the website.
type Form struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Locale      string `json:"locale,omitempty"`
	Source      string `json:"source,omitempty"`
	Page        string `json:"page,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
}

// Validate checks the shape of f without touching the network.
func (f Form) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(f.Name)) < 2 {
		return &odoo.ValidationError{Field: "name", Message: "must be at least 2 characters"}
	}
	if !ValidEmail(f.Email) {
		return &odoo.ValidationError{Field: "email", Message: "is not a valid email address"}
	}
	if utf8.RuneCountInString(strings.TrimSpace(f.Phone)) < 5 {
		return &odoo.ValidationError{Field: "phone", Message: "must be at least 5 characters"}
	}
	return nil
}

// ValidEmail reports whether s has the shape local@domain.tld.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// NormalizeEmail trims and lowercases an address for lookups.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// OdooLang maps a site locale ("es", "es-MX", "FR") to an Odoo language code.
func OdooLang(locale string) string {
	if lang, ok := odooLangs[baseLanguage(locale)]; ok {
		return lang
	}
	return defaultLang
}

func baseLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if tag, err := language.Parse(locale); err == nil {
		base, _ := tag.Base()
		if _, ok := odooLangs[base.String()]; ok {
			return base.String()
		}
		return ""
	}
	if len(locale) >= 2 {
		return strings.ToLower(locale[:2])
	}
	return ""
}

func (f Form) locale() string {
	if l := strings.TrimSpace(f.Locale); l != "" {
		return l
	}
	return "en"
}

func (f Form) submission(now time.Time) Submission {
	return Submission{
		Source:      orDefault(f.Source, "website"),
		Page:        orDefault(f.Page, "/"),
		Locale:      f.locale(),
		UTMSource:   strings.TrimSpace(f.UTMSource),
		UTMMedium:   strings.TrimSpace(f.UTMMedium),
		UTMCampaign: strings.TrimSpace(f.UTMCampaign),
		UTMContent:  strings.TrimSpace(f.UTMContent),
		UTMTerm:     strings.TrimSpace(f.UTMTerm),
		SubmittedAt: now.UTC(),
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
