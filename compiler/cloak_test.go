package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingCloak struct {
	added, removed []uintptr
}

func (c *recordingCloak) AddRange(base uintptr, size int) { c.added = append(c.added, base) }
func (c *recordingCloak) RemoveRange(base uintptr)        { c.removed = append(c.removed, base) }

func TestSetCloakInstallsAndResets(t *testing.T) {
	defer SetCloak(nil)

	rc := &recordingCloak{}
	SetCloak(rc)
	activeCloak.AddRange(0x1000, 16)
	require.Equal(t, []uintptr{0x1000}, rc.added)

	SetCloak(nil)
	require.NotPanics(t, func() { activeCloak.AddRange(0x2000, 16) })
}
