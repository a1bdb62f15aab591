package router

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/extra-connectors/tpbridge/pkg/battery"
)

var (
	// ErrInvalidBool is returned for boolean topics whose payload is
	// neither "true" nor "false".
	ErrInvalidBool = errors.New("payload is not a boolean")
	// ErrMalformedPayload is returned for telemetry that is not valid JSON
	// or does not match the telemetry schema.
	ErrMalformedPayload = errors.New("malformed payload")
)

// BoolLabel maps "true" and "false" payloads to fixed labels. Deployments
// disagree on which label "true" stands for, so both are explicit.
func BoolLabel(trueLabel, falseLabel string) TransformFunc {
	return func(_ context.Context, payload string) (string, error) {
		switch payload {
		case "true":
			return trueLabel, nil
		case "false":
			return falseLabel, nil
		default:
			return "", pkgerrors.Wrapf(ErrInvalidBool, "got %q", payload)
		}
	}
}

// ImageRenderer draws the battery dashboard.
type ImageRenderer interface {
	// Prepare loads everything a render needs.
	Prepare() error
	RenderBase64(d battery.Data) (string, error)
}

// Telemetry validates a JSON partial reading, merges it into snap and
// returns the re-rendered dashboard as base64 PNG. The snapshot is left
// untouched when the payload is rejected or the icons cannot be loaded.
func Telemetry(snap *battery.Snapshot, r ImageRenderer, v *Validator) TransformFunc {
	return func(_ context.Context, payload string) (string, error) {
		if v != nil {
			if err := v.Validate(payload); err != nil {
				return "", pkgerrors.Wrap(ErrMalformedPayload, err.Error())
			}
		}

		u, err := battery.DecodeUpdate([]byte(payload))
		if err != nil {
			return "", pkgerrors.Wrap(ErrMalformedPayload, err.Error())
		}

		if err := r.Prepare(); err != nil {
			return "", err
		}

		snap.Merge(u)
		return r.RenderBase64(snap.Current())
	}
}

// TableOptions configures DefaultTable.
type TableOptions struct {
	LockTrueLabel  string
	LockFalseLabel string
	Snapshot       *battery.Snapshot
	Renderer       ImageRenderer
	Validator      *Validator
}

// DefaultTable returns the handlers of the keyboard lock and battery
// monitor topics.
func DefaultTable(o TableOptions) Table {
	return Table{
		TopicKeyboardLock: {
			StateID:   StateKeyboardLock,
			Transform: BoolLabel(o.LockTrueLabel, o.LockFalseLabel),
		},
		TopicBatteryMonitor: {
			StateID:   StateBatteryImage,
			Transform: Telemetry(o.Snapshot, o.Renderer, o.Validator),
		},
	}
}
