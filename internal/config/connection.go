package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultPhoneField  = "phone"
	DefaultSalesUserID = 2
	DefaultTag         = "Footer-Website"
)

// Connection identifies one Odoo database and the credentials used to call it.
type Connection struct {
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration

	// PhoneField is the res.partner field that receives the phone number.
	PhoneField string
	// SalesUserID owns calendar events created for bookings.
	SalesUserID int64
	// DefaultTag is the acquisition category attached to new contacts.
	DefaultTag string
}

// LoadConnection resolves the Odoo connection from env. It is cheap and
// meant to be called per request.
func LoadConnection(env Env) (Connection, error) {
	c := Connection{
		URL:         env.getDefault("ODOO_URL", env.Get("PUBLIC_ODOO_URL")),
		Database:    env.getDefault("ODOO_DB", env.Get("PUBLIC_ODOO_DB")),
		Username:    env.Get("ODOO_USERNAME"),
		Password:    env.Get("ODOO_PASSWORD"),
		Timeout:     DefaultTimeout,
		PhoneField:  env.getDefault("ODOO_PHONE_FIELD", DefaultPhoneField),
		SalesUserID: DefaultSalesUserID,
		DefaultTag:  env.getDefault("ODOO_DEFAULT_TAG", DefaultTag),
	}

	cfgErr := &Error{Missing: MissingConnectionVars(env)}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			cfgErr.Invalid = append(cfgErr.Invalid, "ODOO_URL")
		}
		c.URL = strings.TrimRight(c.URL, "/")
	}
	if v := env.Get("ODOO_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			cfgErr.Invalid = append(cfgErr.Invalid, "ODOO_TIMEOUT")
		} else {
			c.Timeout = d
		}
	}
	if v := env.Get("ODOO_SALES_USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			cfgErr.Invalid = append(cfgErr.Invalid, "ODOO_SALES_USER_ID")
		} else {
			c.SalesUserID = id
		}
	}

	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return Connection{}, cfgErr
	}
	return c, nil
}

// MissingConnectionVars lists the required Odoo variables absent from env.
func MissingConnectionVars(env Env) []string {
	var missing []string
	if env.Get("ODOO_URL") == "" && env.Get("PUBLIC_ODOO_URL") == "" {
		missing = append(missing, "ODOO_URL")
	}
	if env.Get("ODOO_DB") == "" && env.Get("PUBLIC_ODOO_DB") == "" {
		missing = append(missing, "ODOO_DB")
	}
	if env.Get("ODOO_USERNAME") == "" {
		missing = append(missing, "ODOO_USERNAME")
	}
	if env.Get("ODOO_PASSWORD") == "" {
		missing = append(missing, "ODOO_PASSWORD")
	}
	return missing
}
