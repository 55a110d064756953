package pgwire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFatalFrame(t *testing.T) {
	frame := FatalFrame("Custom auth failed!")
	require.Equal(t, byte('E'), frame[0])

	length := binary.BigEndian.Uint32(frame[1:5])
	require.Equal(t, int(length), len(frame)-1)

	body := string(frame[5:])
	require.Contains(t, body, "SFATAL\x00")
	require.Contains(t, body, "C28000\x00")
	require.Contains(t, body, "MCustom auth failed!\x00")
	require.Equal(t, byte(0), frame[len(frame)-1])
}
