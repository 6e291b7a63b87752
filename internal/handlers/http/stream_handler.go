package http

import (
	stderrors "errors"
	"net/http"
	"time"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
	"streamwatch/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every QueryAPI body.
type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ChannelView is the state of one channel as served over HTTP.
type ChannelView struct {
	Login   string              `json:"login"`
	Online  bool                `json:"online"`
	Stream  *domain.LiveStatus  `json:"stream,omitempty"`
	Profile *domain.ProfileInfo `json:"profile,omitempty"`
}

type SnapshotView struct {
	Online  []domain.LiveStatus  `json:"online"`
	Offline []domain.ProfileInfo `json:"offline"`
	TakenAt *time.Time           `json:"taken_at,omitempty"`
}

type StreamHandler struct {
	snapshots ports.SnapshotReader
	watchlist ports.WatchlistService
}

func NewStreamHandler(snapshots ports.SnapshotReader, watchlist ports.WatchlistService) *StreamHandler {
	return &StreamHandler{
		snapshots: snapshots,
		watchlist: watchlist,
	}
}

// SetupRoutes registers the query routes. Only the banners are public; auth
// guards everything else under /api/v1.
func (h *StreamHandler) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	router.GET("/", h.Index)

	api := router.Group("/api/v1")
	api.GET("/", h.APIIndex)

	guarded := api.Group("", auth)
	{
		guarded.GET("/streamers", h.ListStreamers)
		guarded.GET("/streamers/:login", h.GetStreamer)
		guarded.GET("/snapshot", h.GetSnapshot)
	}

	watchlist := guarded.Group("/watchlist")
	{
		watchlist.GET("", h.ListWatchlist)
		watchlist.POST("", h.AddToWatchlist)
		watchlist.DELETE("/:login", h.RemoveFromWatchlist)
	}
}

func (h *StreamHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Message: "Yo."})
}

func (h *StreamHandler) APIIndex(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Message: "Welcome to the streamwatch API v1"})
}

func (h *StreamHandler) ListStreamers(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Message: "Online streamers",
		Data:    h.snapshots.Snapshot().OnlineStreams(),
	})
}

func (h *StreamHandler) GetStreamer(c *gin.Context) {
	login := domain.NormalizeLogin(c.Param("login"))
	snap := h.snapshots.Snapshot()

	if status, ok := snap.Lookup(login); ok {
		c.JSON(http.StatusOK, Response{
			Message: "Streamer is online",
			Data:    ChannelView{Login: login, Online: true, Stream: &status},
		})
		return
	}
	if profile, ok := snap.OfflineProfiles[login]; ok {
		c.JSON(http.StatusOK, Response{
			Message: "Streamer is offline",
			Data:    ChannelView{Login: login, Profile: &profile},
		})
		return
	}

	c.Error(errors.NewNotFoundError("streamer").WithContext("login", login))
}

func (h *StreamHandler) GetSnapshot(c *gin.Context) {
	snap := h.snapshots.Snapshot()
	view := SnapshotView{
		Online:  snap.OnlineStreams(),
		Offline: snap.OfflineList(),
	}
	if !snap.TakenAt.IsZero() {
		takenAt := snap.TakenAt
		view.TakenAt = &takenAt
	}
	c.JSON(http.StatusOK, Response{Message: "Current snapshot", Data: view})
}

func (h *StreamHandler) ListWatchlist(c *gin.Context) {
	logins, err := h.watchlist.List(c.Request.Context())
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, Response{Message: "Watch-list", Data: logins})
}

func (h *StreamHandler) AddToWatchlist(c *gin.Context) {
	var req struct {
		Login string `json:"login" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("body must be {\"login\": \"<channel>\"}"))
		return
	}

	event, err := h.watchlist.Add(c.Request.Context(), req.Login)
	if err != nil {
		c.Error(toAppError(err).WithContext("login", req.Login))
		return
	}

	view := ChannelView{
		Login:   event.Login(),
		Online:  event.Kind == domain.WentOnline,
		Profile: event.Profile,
	}
	if view.Online {
		view.Stream = &event.Status
	}
	c.JSON(http.StatusCreated, Response{Message: "Channel added", Data: view})
}

func (h *StreamHandler) RemoveFromWatchlist(c *gin.Context) {
	login := c.Param("login")
	if err := h.watchlist.Remove(c.Request.Context(), login); err != nil {
		c.Error(toAppError(err).WithContext("login", login))
		return
	}
	c.JSON(http.StatusOK, Response{Message: "Channel removed"})
}

func toAppError(err error) *errors.AppError {
	var (
		authErr  *domain.AuthError
		fetchErr *domain.FetchError
	)
	switch {
	case stderrors.Is(err, domain.ErrInvalidChannel):
		return errors.NewInvalidInputError(err.Error())
	case stderrors.Is(err, domain.ErrAlreadyWatched), stderrors.Is(err, domain.ErrWatchlistFull):
		return errors.NewConflictError(err.Error())
	case stderrors.Is(err, domain.ErrNotWatched):
		return errors.NewNotFoundError("channel")
	case stderrors.As(err, &authErr), stderrors.As(err, &fetchErr):
		return errors.NewBadGatewayError(err, "twitch request failed")
	default:
		return errors.WrapError(err, errors.ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}

var _ ports.HTTPHandler = (*StreamHandler)(nil)
