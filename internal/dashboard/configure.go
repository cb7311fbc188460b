package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/salini0110200/lockbot/internal/policy"
)

type configureRequest struct {
	Cookies json.RawMessage `json:"cookies"`
	Prefix  string          `json:"prefix" validate:"omitempty,max=16"`
	AdminID string          `json:"adminID" validate:"required"`
}

// handleConfigure stores new credentials and (re)starts the bot. Nothing is
// mutated unless the whole submission is valid. An omitted prefix or adminID
// keeps the stored one.
func (s *Server) handleConfigure(c *gin.Context) {
	req, err := bindConfigure(c)
	if err != nil {
		s.logger.Error("config_error", "error", err.Error())
		c.String(http.StatusBadRequest, "Invalid data")
		return
	}
	cookies, ok := normalizeCookies(req.Cookies)
	if !ok || !policy.ValidCredentials(cookies) {
		c.String(http.StatusBadRequest, "Invalid cookies")
		return
	}
	req.Prefix = strings.TrimSpace(req.Prefix)
	req.AdminID = strings.TrimSpace(req.AdminID)
	if req.AdminID == "" {
		req.AdminID = s.store.AdminID()
	}
	if err := s.validate.Struct(req); err != nil {
		c.String(http.StatusBadRequest, validationMessage(err))
		return
	}

	s.store.Configure(cookies, req.Prefix, req.AdminID)
	s.logger.Info("configuration_saved", "admin_id", req.AdminID, "prefix", s.store.Prefix())
	c.String(http.StatusOK, "Configured. Starting bot...")
	if s.bot != nil {
		go s.bot.Restart()
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "AdminID" {
				return "adminID required"
			}
		}
		return "Invalid prefix"
	}
	return "Invalid data"
}

// bindConfigure accepts JSON or form bodies. In a form the cookies field is
// the JSON text of the cookie array.
func bindConfigure(c *gin.Context) (configureRequest, error) {
	var req configureRequest
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		if err := c.ShouldBindJSON(&req); err != nil {
			return configureRequest{}, err
		}
		return req, nil
	}
	if err := c.Request.ParseForm(); err != nil {
		return configureRequest{}, err
	}
	if raw := strings.TrimSpace(c.PostForm("cookies")); raw != "" {
		req.Cookies = json.RawMessage(raw)
	}
	req.Prefix = c.PostForm("prefix")
	req.AdminID = c.PostForm("adminID")
	return req, nil
}

// normalizeCookies unwraps a cookie array that arrived JSON-encoded inside a
// string.
func normalizeCookies(raw json.RawMessage) (json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}
	if raw[0] != '"' {
		return raw, json.Valid(raw)
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, false
	}
	out := json.RawMessage(strings.TrimSpace(inner))
	return out, json.Valid(out)
}
