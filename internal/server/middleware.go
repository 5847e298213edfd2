package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Gateway headers. An upstream gateway authenticates the caller and sets them.
const (
	HeaderTenantID      = "X-Tenant-ID"
	HeaderUserID        = "X-User-ID"
	HeaderUserRole      = "X-User-Role"
	HeaderSourceChannel = "X-Source-Channel"
	HeaderDisplayName   = "X-Display-Name"
	HeaderBotName       = "X-Bot-Name"
	HeaderBotID         = "X-Bot-ID"
)

type requesterKey struct{}

// requesterFromHeaders builds the requester variant matching the source channel.
func requesterFromHeaders(h http.Header) (models.Requester, bool) {
	tenant := strings.TrimSpace(h.Get(HeaderTenantID))
	user := strings.TrimSpace(h.Get(HeaderUserID))
	if tenant == "" || user == "" {
		return nil, false
	}
	company := strings.TrimSpace(h.Get(HeaderDisplayName))
	bot := strings.TrimSpace(h.Get(HeaderBotName))

	switch channel := strings.ToLower(strings.TrimSpace(h.Get(HeaderSourceChannel))); channel {
	case "", models.ChannelAPI:
		return models.Account{
			UserID:      user,
			Tenant:      tenant,
			UserRole:    strings.TrimSpace(h.Get(HeaderUserRole)),
			CompanyName: company,
			BotName:     bot,
		}, true
	case models.ChannelEmbed:
		return models.WidgetSession{
			BotID:       strings.TrimSpace(h.Get(HeaderBotID)),
			SessionID:   user,
			Tenant:      tenant,
			CompanyName: company,
			BotName:     bot,
		}, true
	default:
		return models.ChannelSender{
			SenderID:    user,
			Channel:     channel,
			Tenant:      tenant,
			CompanyName: company,
			BotName:     bot,
		}, true
	}
}

func requesterFrom(ctx context.Context) models.Requester {
	who, _ := ctx.Value(requesterKey{}).(models.Requester)
	return who
}

func (s *Server) requireRequester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, ok := requesterFromHeaders(r.Header)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "missing tenant or user identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requesterKey{}, who)))
	})
}

// requireTenantAdmin admits only the tenant's own administrators.
func (s *Server) requireTenantAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who := requesterFrom(r.Context())
		if who == nil || who.TenantID() != chi.URLParam(r, "tenant") {
			s.respondError(w, http.StatusForbidden, "tenant mismatch")
			return
		}
		if !s.isAdmin(who) {
			s.respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin admits only requesters holding the admin role. The tenant comes from the
// requester itself, so stores keep the call tenant scoped.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAdmin(requesterFrom(r.Context())) {
			s.respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isAdmin(who models.Requester) bool {
	return who != nil && strings.EqualFold(who.Role(), s.adminRole)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)))
	})
}
