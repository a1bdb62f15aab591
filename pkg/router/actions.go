package router

import "strings"

// LockAction is the payload of a keyboard lock request sent to the
// downstream peer.
type LockAction string

const (
	LockToggle  LockAction = "Toggle"
	LockEnable  LockAction = "Enable"
	LockDisable LockAction = "Disable"
)

// ParseLockAction accepts an action name in any case.
func ParseLockAction(s string) (LockAction, bool) {
	for _, a := range []LockAction{LockToggle, LockEnable, LockDisable} {
		if strings.EqualFold(s, string(a)) {
			return a, true
		}
	}
	return "", false
}
