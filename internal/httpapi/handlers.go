package httpapi

import (
	"context"
	"net/http"
	"time"

	"telehealth-platform/internal/apperr"
	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/config"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/rbac"
	"telehealth-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type CallFinder interface {
	Find(ctx context.Context, callID string) (calls.Call, error)
}

type AuditTrail interface {
	Trail(ctx context.Context, callID string) ([]audit.Event, error)
}

type MediaStats interface {
	Stats() media.Stats
}

type ConnectionCounter interface {
	ClientCount() int
}

type Handlers struct {
	Calls       CallFinder
	Audit       AuditTrail
	Tokens      *auth.Manager
	Users       auth.UserDirectory
	Media       MediaStats
	Connections ConnectionCounter
	ICEServers  []config.ICEServer
}

// writeError maps a failure to a status code and a client-safe message.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

// --- Calls ---

// visibleCall loads the :call_id call if the caller took part in it or is an admin.
func (h Handlers) visibleCall(c *gin.Context) (calls.Call, bool) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return calls.Call{}, false
	}
	call, err := h.Calls.Find(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return calls.Call{}, false
	}
	if !call.IsParticipant(id.UserID) && !rbac.IsAdmin(id.Role) {
		writeError(c, calls.ErrNotParticipant)
		return calls.Call{}, false
	}
	return call, true
}

// GetCall returns a call record to one of its participants or an admin.
func (h Handlers) GetCall(c *gin.Context) {
	call, ok := h.visibleCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, call)
}

// GetCallAudit returns the call's transition trail, oldest first.
func (h Handlers) GetCallAudit(c *gin.Context) {
	call, ok := h.visibleCall(c)
	if !ok {
		return
	}
	events, err := h.Audit.Trail(c.Request.Context(), call.CallID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"callId": call.CallID, "events": events})
}

// --- Connectivity ---

func (h Handlers) GetICEServers(c *gin.Context) {
	servers := h.ICEServers
	if servers == nil {
		servers = []config.ICEServer{}
	}
	c.JSON(http.StatusOK, gin.H{"iceServers": servers})
}

// MediaStats reports live SFU resources and open sockets.
// RBAC: admin.
func (h Handlers) MediaStats(c *gin.Context) {
	out := gin.H{"media": h.Media.Stats()}
	if h.Connections != nil {
		out["connections"] = h.Connections.ClientCount()
	}
	c.JSON(http.StatusOK, out)
}

// --- Auth ---

type tokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

var (
	errTokenFields = apperr.Validation("user_id and role required")
	errInvalidJSON = apperr.Validation("invalid json")
)

// IssueToken mints a token pair for an existing user. Only mounted outside
// production; real sign-in lives in the identity service.
func (h Handlers) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errInvalidJSON)
		return
	}
	if req.UserID == "" || req.Role == "" {
		writeError(c, errTokenFields)
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		writeError(c, auth.ErrUnknownRole)
		return
	}
	if h.Users != nil {
		ok, err := h.Users.UserExists(c.Request.Context(), req.UserID, req.Role)
		if err != nil {
			writeError(c, err)
			return
		}
		if !ok {
			writeError(c, auth.ErrUserNotFound)
			return
		}
	}

	pair, err := h.Tokens.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}
