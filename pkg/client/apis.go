package client

import (
	"encoding/json"
	"errors"
	"net/url"

	pkgerrors "github.com/pkg/errors"

	"github.com/extra-connectors/tpbridge/pkg/battery"
	"github.com/extra-connectors/tpbridge/pkg/config"
	"github.com/extra-connectors/tpbridge/pkg/sink"
	"github.com/extra-connectors/tpbridge/pkg/types"
)

func getJSON[T any](c *Client, path, what string) (T, error) {
	var v T
	ret, err := c.Get(path)
	if err != nil {
		return v, pkgerrors.Wrapf(err, "failed to get %s", what)
	}
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return v, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	conf, err := getJSON[config.RawFileConfig](c, "/config", "config")
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	return getJSON[string](c, "/version", "version")
}

func (c *Client) GetStatus() (*types.Status, error) {
	st, err := getJSON[types.Status](c, "/status", "status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) GetStates() ([]sink.State, error) {
	return getJSON[[]sink.State](c, "/states", "states")
}

func (c *Client) GetState(id string) (*sink.State, error) {
	st, err := getJSON[sink.State](c, "/states/"+url.PathEscape(id), "state "+id)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) GetSnapshot() ([]battery.GaugeReport, error) {
	return getJSON[[]battery.GaugeReport](c, "/snapshot", "battery snapshot")
}

// GetImage returns the rendered dashboard PNG.
func (c *Client) GetImage() ([]byte, error) {
	b, _, err := c.send("GET", "/image.png", "", nil)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get dashboard image")
	}
	return b, nil
}

// SetLock asks the daemon to forward a keyboard lock action downstream.
func (c *Client) SetLock(action string) (string, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return "", err
	}
	return c.Put("/lock", string(payload))
}

func (c *Client) SetLockLabels(trueLabel, falseLabel string) (string, error) {
	payload, err := json.Marshal(types.LockLabels{True: trueLabel, False: falseLabel})
	if err != nil {
		return "", err
	}
	return c.Put("/lock-labels", string(payload))
}

// SetHandlerErrorPolicy sets what a failing handler does to the bridge,
// nack or fatal.
func (c *Client) SetHandlerErrorPolicy(policy string) (string, error) {
	payload, err := json.Marshal(policy)
	if err != nil {
		return "", err
	}
	return c.Put("/handler-error-policy", string(payload))
}

func (c *Client) SetClockSchedule(spec string) (string, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}
	return c.Put("/clock-schedule", string(payload))
}

// SendFrame dispatches a frame through the daemon's router as if it had
// arrived on the inbound endpoint. Frames with an unknown topic or a
// failing handler are reported in the response, not as an error.
func (c *Client) SendFrame(topic, payload string) (*types.FrameResponse, error) {
	body, err := json.Marshal(types.FrameRequest{Topic: topic, Payload: payload})
	if err != nil {
		return nil, err
	}

	b, _, err := c.send("POST", "/frames", string(body), nil)
	var resp types.FrameResponse
	if uerr := json.Unmarshal(b, &resp); uerr == nil && resp.Reply != "" {
		return &resp, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.Wrapf(err, "failed to send frame")
	}
	return nil, pkgerrors.Errorf("unexpected response to frame: %s", string(b))
}
