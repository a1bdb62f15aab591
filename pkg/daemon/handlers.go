package daemon

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/extra-connectors/tpbridge/pkg/assets"
	"github.com/extra-connectors/tpbridge/pkg/bridge"
	"github.com/extra-connectors/tpbridge/pkg/clock"
	"github.com/extra-connectors/tpbridge/pkg/config"
	"github.com/extra-connectors/tpbridge/pkg/router"
	"github.com/extra-connectors/tpbridge/pkg/transport"
	"github.com/extra-connectors/tpbridge/pkg/types"
	"github.com/extra-connectors/tpbridge/pkg/version"
)

func (s *Server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *Server) getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (s *Server) getStatus(c *gin.Context) {
	_, b, tk := s.current()

	st := types.Status{
		Transport:     s.conf.Transport(),
		Pattern:       s.conf.Pattern(),
		Inbound:       s.conf.InboundEndpoint(),
		Outbound:      s.conf.OutboundEndpoint(),
		Bridge:        bridge.StateUnbound.String(),
		TickerRunning: tk != nil && tk.Running(),
		States:        len(s.store.List()),
		Listeners:     s.hub.Subscribers(),
	}
	if b != nil {
		st.Bridge = b.State().String()
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (s *Server) getStates(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.store.List())
}

func (s *Server) getState(c *gin.Context) {
	st, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.IndentedJSON(http.StatusNotFound, "no such state")
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (s *Server) getSnapshot(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.snap.Current().Report())
}

func (s *Server) getImage(c *gin.Context) {
	png, err := s.renderer.Render(s.snap.Current())
	if err != nil {
		var loadErr *assets.AssetLoadError
		code := http.StatusInternalServerError
		if errors.As(err, &loadErr) {
			code = http.StatusServiceUnavailable
		}
		c.IndentedJSON(code, err.Error())
		_ = c.AbortWithError(code, err)
		return
	}

	sum := blake3.Sum256(png)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) setLock(c *gin.Context) {
	var raw string
	if err := c.BindJSON(&raw); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	action, ok := router.ParseLockAction(raw)
	if !ok {
		c.IndentedJSON(http.StatusBadRequest, "action must be one of Toggle, Enable, Disable")
		return
	}

	_, b, _ := s.current()
	if b == nil {
		c.IndentedJSON(http.StatusServiceUnavailable, "bridge is not running")
		return
	}

	err := b.Forward(c.Request.Context(), router.TopicKeyboardLock, string(action))
	s.metrics.observeForward(err)
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, bridge.ErrNoOutbound) || errors.Is(err, transport.ErrNotConnected) || errors.Is(err, transport.ErrClosed) {
			code = http.StatusServiceUnavailable
		}
		c.IndentedJSON(code, err.Error())
		_ = c.AbortWithError(code, err)
		return
	}

	logrus.WithField("action", action).Info("keyboard lock action forwarded")

	c.IndentedJSON(http.StatusAccepted, "ok")
}

func (s *Server) postFrame(c *gin.Context) {
	var req types.FrameRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	r, _, _ := s.current()
	if r == nil {
		c.IndentedJSON(http.StatusServiceUnavailable, "bridge is not running")
		return
	}

	res, err := r.Dispatch(c.Request.Context(), req.Topic, req.Payload)
	s.onFrame(bridge.Frame{Topic: req.Topic, Reply: bridge.ReplyFor(err), Err: err})

	resp := types.FrameResponse{
		Reply:   bridge.ReplyFor(err),
		StateID: res.StateID,
		Value:   res.Value,
	}
	switch {
	case err == nil:
		c.IndentedJSON(http.StatusOK, resp)
	case errors.Is(err, router.ErrUnknownTopic):
		resp.Error = err.Error()
		c.IndentedJSON(http.StatusNotFound, resp)
	default:
		resp.Error = err.Error()
		c.IndentedJSON(http.StatusUnprocessableEntity, resp)
	}
}

func (s *Server) setLockLabels(c *gin.Context) {
	var l types.LockLabels
	if err := c.BindJSON(&l); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if l.True == "" || l.False == "" || l.True == l.False {
		c.IndentedJSON(http.StatusBadRequest, "labels must be non-empty and differ")
		return
	}

	// The router captures the labels, the bridge is rebuilt.
	oldTrue, oldFalse := s.conf.LockTrueLabel(), s.conf.LockFalseLabel()
	if !s.saveAndRestart(c,
		func() { s.conf.SetLockLabels(l.True, l.False) },
		func() { s.conf.SetLockLabels(oldTrue, oldFalse) },
	) {
		return
	}

	logrus.Infof("set keyboard lock labels to %s/%s", l.True, l.False)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) setHandlerErrorPolicy(c *gin.Context) {
	var p string
	if err := c.BindJSON(&p); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if !bridge.Policy(p).Valid() {
		c.IndentedJSON(http.StatusBadRequest, "policy must be nack or fatal")
		return
	}

	old := s.conf.HandlerErrorPolicy()
	if !s.saveAndRestart(c,
		func() { s.conf.SetHandlerErrorPolicy(p) },
		func() { s.conf.SetHandlerErrorPolicy(old) },
	) {
		return
	}

	logrus.Infof("set handler error policy to %s", p)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) setClockSchedule(c *gin.Context) {
	var spec string
	if err := c.BindJSON(&spec); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if err := clock.ValidateSchedule(spec); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		return
	}

	old := s.conf.ClockSchedule()
	if !s.saveAndRestart(c,
		func() { s.conf.SetClockSchedule(spec) },
		func() { s.conf.SetClockSchedule(old) },
	) {
		return
	}

	logrus.Infof("set clock schedule to %q", spec)

	c.IndentedJSON(http.StatusCreated, "ok")
}

// saveAndRestart applies a setting, saves the config and restarts the
// bridge. undo restores the setting when the config cannot be saved. It
// writes the error response and returns false on failure.
func (s *Server) saveAndRestart(c *gin.Context, apply, undo func()) bool {
	apply()
	if err := s.conf.Save(); err != nil {
		undo()
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return false
	}

	if err := s.Restart(context.Background()); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return false
	}
	return true
}
