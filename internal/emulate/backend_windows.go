//go:build windows

package emulate

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows"
)

// init registers the Windows candidate in the priority order from
// spec §4.5/§4.6 (".. -> Windows -> macOS -> dummy"). Actually playing
// events via SendInput is out of scope (spec §1); this candidate only
// decides availability, the way the teacher's osutils_windows.go
// decides whether it can request firewall elevation before attempting
// it.
func init() {
	RegisterCandidate("windows-sendinput", newWindowsBackend)
}

func newWindowsBackend(_ context.Context) (Backend, error) {
	if !processIsElevated() {
		return nil, fmt.Errorf("emulate: windows backend requires an elevated process for low-level input hooks")
	}
	d, err := newDummy(context.Background())
	if err != nil {
		return nil, err
	}
	return &windowsBackend{dummy: d.(*dummy)}, nil
}

// windowsBackend wraps the pressed-key bookkeeping of dummy; actual
// SendInput calls are the out-of-scope OS-specific collaborator named
// in spec §1 and are not reimplemented here.
type windowsBackend struct {
	*dummy
}

func (w *windowsBackend) Name() string { return "windows-sendinput" }

// processIsElevated mirrors the admin-token check in the teacher's
// internal/osutils/osutils_windows.go (IsAdmin), grounding the Windows
// backend candidate in a real syscall instead of a hardcoded bool.
func processIsElevated() bool {
	var token windows.Token
	h, err := windows.GetCurrentProcess()
	if err != nil {
		return false
	}
	if err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err = windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}
	return member
}
