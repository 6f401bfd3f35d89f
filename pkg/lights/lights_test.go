// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lights

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Thermoquad/lumen/pkg/mavlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSendFailed = errors.New("queue full")

// recordingTransport accepts frames until the failAt-th call (1-based)
type recordingTransport struct {
	sender mavlink.Address
	failAt int
	calls  int
	sent   []*mavlink.LEDStripConfig
	wire   [][]byte
}

func (r *recordingTransport) QueueMessage(build BuildFunc) error {
	r.calls++
	f := build(r.sender, 0)
	if r.calls == r.failAt {
		return errSendFailed
	}
	r.sent = append(r.sent, f.Message.(*mavlink.LEDStripConfig))
	r.wire = append(r.wire, mavlink.MustEncodeFrame(f))
	return nil
}

var testTarget = mavlink.Address{SystemID: 1, ComponentID: mavlink.ComponentIDAutopilot}

func sequentialStrip(n int, base Color) LightStrip {
	strip := LightStrip{Lights: make([]Color, n)}
	for i := range strip.Lights {
		strip.Lights[i] = base + Color(i)
	}
	return strip
}

func TestEncode_IndexedColors(t *testing.T) {
	f := Encode(3, IndexedColors{Offset: 16, Colors: []Color{0xAA, 0xBB, 0xCC}})

	assert.Equal(t, uint8(3), f.StripID)
	assert.Equal(t, mavlink.FillModeIndex, f.Mode)
	assert.Equal(t, uint8(16), f.Offset)
	assert.Equal(t, uint8(3), f.Count)
	assert.Equal(t, [FrameColors]Color{0xAA, 0xBB, 0xCC}, f.Colors)
	assert.Equal(t, []Color{0xAA, 0xBB, 0xCC}, f.Valid())
}

func TestEncode_FollowVehicleMode(t *testing.T) {
	f := Encode(0, FollowVehicleMode{})

	assert.Equal(t, mavlink.FillModeFollowFlightMode, f.Mode)
	assert.Equal(t, uint8(0), f.Offset)
	assert.Equal(t, uint8(FrameColors), f.Count)
	assert.Equal(t, [FrameColors]Color{}, f.Colors)
	assert.Empty(t, f.Valid())
}

func TestEncode_ExtraColorsNotEncoded(t *testing.T) {
	f := Encode(0, IndexedColors{Colors: sequentialStrip(10, 1).Lights})
	assert.Equal(t, uint8(FrameColors), f.Count)
	assert.Equal(t, Color(8), f.Colors[7])
}

func TestEncode_NilFillModePanics(t *testing.T) {
	assert.Panics(t, func() { Encode(0, nil) })
}

func TestFrame_Message(t *testing.T) {
	m := Encode(5, IndexedColors{Offset: 8, Colors: []Color{0x123456}}).Message(testTarget)

	assert.Equal(t, testTarget.SystemID, m.TargetSystem)
	assert.Equal(t, testTarget.ComponentID, m.TargetComponent)
	assert.Equal(t, uint8(5), m.StripID)
	assert.Equal(t, uint8(8), m.LEDIndex)
	assert.Equal(t, uint8(1), m.LEDCount)
	assert.Equal(t, [mavlink.LEDStripMaxColors]uint32{0x123456}, m.Colors)
	assert.Empty(t, mavlink.ValidateFrame(mavlink.NewFrame(mavlink.Address{}, m)))
}

func TestChunk_FrameCountAndOffsets(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 9, 15, 16, 17, 24, 100, MaxStripLength} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			frames := Chunk(0, sequentialStrip(n, 1))

			require.Len(t, frames, (n+FrameColors-1)/FrameColors)
			for i, f := range frames {
				assert.Equal(t, uint8(i*FrameColors), f.Offset, "frame %d offset", i)
			}
			if n == 0 {
				return
			}

			last := frames[len(frames)-1]
			want := n % FrameColors
			if want == 0 {
				want = FrameColors
			}
			assert.Equal(t, uint8(want), last.Count)
			for i := int(last.Count); i < FrameColors; i++ {
				assert.Zero(t, last.Colors[i], "padding slot %d", i)
			}
		})
	}
}

func TestChunk_RoundTrip(t *testing.T) {
	for _, n := range []int{1, 8, 13, 64, 201} {
		strip := sequentialStrip(n, 0xFF000000)

		var rebuilt []Color
		for _, f := range Chunk(2, strip) {
			rebuilt = append(rebuilt, f.Valid()...)
		}
		assert.Equal(t, strip.Lights, rebuilt, "N=%d", n)
	}
}

func TestSetMatrix_Scenario(t *testing.T) {
	tr := &recordingTransport{sender: mavlink.Address{SystemID: 255, ComponentID: mavlink.ComponentIDLights}}
	l := New(tr, testTarget)

	err := l.SetMatrix(LightMatrix{Strips: []LightStrip{sequentialStrip(10, 1), {}}})
	require.NoError(t, err)

	require.Len(t, tr.sent, 2)
	assert.Equal(t, uint8(0), tr.sent[0].StripID)
	assert.Equal(t, uint8(0), tr.sent[0].LEDIndex)
	assert.Equal(t, uint8(8), tr.sent[0].LEDCount)
	assert.Equal(t, uint8(0), tr.sent[1].StripID)
	assert.Equal(t, uint8(8), tr.sent[1].LEDIndex)
	assert.Equal(t, uint8(2), tr.sent[1].LEDCount)
	assert.Equal(t, ResultSuccess, ResultOf(err))
}

func TestSetMatrix_FailureOnSecondFrame(t *testing.T) {
	tr := &recordingTransport{failAt: 2}
	l := New(tr, testTarget)

	err := l.SetMatrix(LightMatrix{Strips: []LightStrip{sequentialStrip(10, 1), {}}})

	require.Error(t, err)
	assert.Equal(t, 2, tr.calls, "exactly two frames attempted")
	assert.Len(t, tr.sent, 1)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, errSendFailed)
	assert.Equal(t, ResultConnectionError, ResultOf(err))

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, uint8(0), dispatchErr.StripID)
	assert.Equal(t, uint8(8), dispatchErr.Offset)
}

func TestSetMatrix_ShortCircuitSkipsLaterStrips(t *testing.T) {
	matrix := LightMatrix{Strips: []LightStrip{
		sequentialStrip(20, 0x100), // 3 frames
		sequentialStrip(17, 0x200), // 3 frames
		sequentialStrip(9, 0x300),  // 2 frames
	}}

	for k := 1; k <= 8; k++ {
		t.Run(fmt.Sprintf("fail at frame %d", k), func(t *testing.T) {
			tr := &recordingTransport{failAt: k}
			err := New(tr, testTarget).SetMatrix(matrix)

			require.ErrorIs(t, err, ErrConnection)
			assert.Equal(t, k, tr.calls, "frames after the failure must not be built")

			var dispatchErr *DispatchError
			require.ErrorAs(t, err, &dispatchErr)
			wantStrip := uint8(0)
			switch {
			case k > 6:
				wantStrip = 2
			case k > 3:
				wantStrip = 1
			}
			assert.Equal(t, wantStrip, dispatchErr.StripID)
			for _, m := range tr.sent {
				assert.LessOrEqual(t, m.StripID, wantStrip)
			}
		})
	}
}

func TestSetMatrix_Idempotent(t *testing.T) {
	matrix := LightMatrix{Strips: []LightStrip{
		sequentialStrip(24, 0xFF0000),
		UniformStrip(5, 0x00FF00),
		{},
		sequentialStrip(33, 0x0000FF),
	}}

	first := &recordingTransport{sender: mavlink.Address{SystemID: 1, ComponentID: 135}}
	second := &recordingTransport{sender: mavlink.Address{SystemID: 1, ComponentID: 135}}
	require.NoError(t, New(first, testTarget).SetMatrix(matrix))
	require.NoError(t, New(second, testTarget).SetMatrix(matrix))

	assert.Equal(t, first.wire, second.wire)
	assert.Len(t, first.wire, 3+1+0+5)
}

func TestSetMatrix_StripIDsFollowPosition(t *testing.T) {
	tr := &recordingTransport{}
	strips := make([]LightStrip, 5)
	for i := range strips {
		strips[i] = UniformStrip(3, Color(i))
	}
	require.NoError(t, New(tr, testTarget).SetMatrix(LightMatrix{Strips: strips}))

	require.Len(t, tr.sent, 5)
	for i, m := range tr.sent {
		assert.Equal(t, uint8(i), m.StripID)
		assert.Equal(t, uint32(i), m.Colors[0])
	}
}

func TestSetStrip_Empty(t *testing.T) {
	tr := &recordingTransport{failAt: 1}
	assert.NoError(t, New(tr, testTarget).SetStrip(4, LightStrip{}))
	assert.Zero(t, tr.calls)
}

func TestSetStrip_UsesGivenStripID(t *testing.T) {
	tr := &recordingTransport{}
	require.NoError(t, New(tr, testTarget).SetStrip(7, sequentialStrip(12, 0)))

	require.Len(t, tr.sent, 2)
	for _, m := range tr.sent {
		assert.Equal(t, uint8(7), m.StripID)
		assert.Equal(t, testTarget.SystemID, m.TargetSystem)
		assert.Equal(t, testTarget.ComponentID, m.TargetComponent)
	}
}

func TestSetStrip_TooLong(t *testing.T) {
	tr := &recordingTransport{}
	err := New(tr, testTarget).SetStrip(0, sequentialStrip(MaxStripLength+1, 0))

	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.Equal(t, ResultInvalidArgument, ResultOf(err))
	assert.Zero(t, tr.calls)
}

func TestSetMatrix_InvalidSendsNothing(t *testing.T) {
	tests := []struct {
		name   string
		matrix LightMatrix
	}{
		{
			name:   "too many strips",
			matrix: LightMatrix{Strips: make([]LightStrip, MaxStrips+1)},
		},
		{
			name:   "last strip too long",
			matrix: LightMatrix{Strips: []LightStrip{sequentialStrip(8, 0), sequentialStrip(MaxStripLength+1, 0)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &recordingTransport{}
			err := New(tr, testTarget).SetMatrix(tt.matrix)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Zero(t, tr.calls)
		})
	}
}

func TestFollowVehicleMode(t *testing.T) {
	tr := &recordingTransport{sender: mavlink.Address{SystemID: 1, ComponentID: 135}}
	l := New(tr, testTarget)

	require.NoError(t, l.FollowVehicleMode(true))

	require.Len(t, tr.sent, 1)
	m := tr.sent[0]
	assert.Equal(t, mavlink.FillModeFollowFlightMode, m.FillMode)
	assert.Equal(t, uint8(0), m.LEDIndex)
	assert.Equal(t, uint8(mavlink.LEDStripMaxColors), m.LEDCount)
	assert.Equal(t, uint8(0), m.StripID)
	assert.Equal(t, [mavlink.LEDStripMaxColors]uint32{}, m.Colors)
}

func TestFollowVehicleMode_Disable(t *testing.T) {
	tr := &recordingTransport{failAt: 1}
	assert.NoError(t, New(tr, testTarget).FollowVehicleMode(false))
	assert.Zero(t, tr.calls)
}

func TestFollowVehicleMode_Failure(t *testing.T) {
	tr := &recordingTransport{failAt: 1}
	err := New(tr, testTarget).FollowVehicleMode(true)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, 1, tr.calls)
}

func TestBuildFuncUsesTransportSender(t *testing.T) {
	sender := mavlink.Address{SystemID: 42, ComponentID: 135}
	var built *mavlink.Frame
	tr := transportFunc(func(build BuildFunc) error {
		built = build(sender, 3)
		return nil
	})

	require.NoError(t, New(tr, testTarget).SetStrip(0, UniformStrip(1, 1)))
	require.NotNil(t, built)
	assert.Equal(t, sender, built.Sender)
}

type transportFunc func(build BuildFunc) error

func (f transportFunc) QueueMessage(build BuildFunc) error { return f(build) }

func TestResultString(t *testing.T) {
	assert.Equal(t, "Success", ResultSuccess.String())
	assert.Equal(t, "Connection Error", ResultConnectionError.String())
	assert.Equal(t, "Invalid Argument", ResultInvalidArgument.String())
	assert.Equal(t, "Unknown", Result(99).String())
}
