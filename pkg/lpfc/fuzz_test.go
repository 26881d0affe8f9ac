// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomResponse builds a random valid inbound frame and returns the event
// fields expected after decoding
func randomResponse(rng *rand.Rand) ([]byte, Command) {
	switch rng.Intn(3) {
	case 0:
		group := PIDGroups[rng.Intn(len(PIDGroups))]
		pid := PID{
			Kp:       int16(rng.Intn(1 << 16)),
			Ki:       int16(rng.Intn(1 << 16)),
			Kd:       int16(rng.Intn(1 << 16)),
			IntLimit: int16(rng.Intn(1 << 16)),
		}
		return NewPIDResponse(group, pid), group.GetCommand()
	case 1:
		return NewSettingsResponse(Settings{
			AngleKp:               int16(rng.Intn(1 << 16)),
			HeadingKp:             int16(rng.Intn(1 << 16)),
			AngleMaxInc:           uint8(rng.Intn(256)),
			AngleMaxIncSonar:      uint8(rng.Intn(256)),
			StickScalingRollPitch: int16(rng.Intn(1 << 16)),
			StickScalingYaw:       int16(rng.Intn(1 << 16)),
		}), CmdGetSettings
	default:
		return NewAnglesResponse(Angles{
			Roll:  rng.Float64()*360 - 180,
			Pitch: rng.Float64()*360 - 180,
			Yaw:   rng.Float64() * 360,
		}), CmdSendAngles
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

func TestFuzz_RandomBytesNeverPanic(t *testing.T) {
	rng := newFuzzRng(t)
	d := NewDecoder()

	for round := 0; round < getFuzzRounds(); round++ {
		chunk := make([]byte, rng.Intn(64))
		rng.Read(chunk)

		require.NotPanics(t, func() {
			for _, r := range d.Feed(chunk) {
				if r.Err == nil {
					require.NotNil(t, r.Event)
				}
			}
		}, "round %d", round)
		require.LessOrEqual(t, d.Buffered(), DefaultBufferSize)
	}
}

func TestFuzz_RandomChunking(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds()/10+1; round++ {
		var stream []byte
		var want []Command
		for i := 0; i < 1+rng.Intn(20); i++ {
			frame, cmd := randomResponse(rng)
			stream = append(stream, frame...)
			want = append(want, cmd)
		}

		d := NewDecoder()
		var got []Command
		for len(stream) > 0 {
			n := 1 + rng.Intn(len(stream))
			for _, r := range d.Feed(stream[:n]) {
				require.NoError(t, r.Err, "round %d", round)
				got = append(got, r.Event.Command())
			}
			stream = stream[n:]
		}

		assert.Equal(t, want, got, "round %d", round)
		assert.Equal(t, 0, d.Buffered())
	}
}

func TestFuzz_CorruptionDoesNotDesync(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds()/10+1; round++ {
		frame, _ := randomResponse(rng)

		// Flip one bit in command, length, payload or checksum
		bad := append([]byte(nil), frame...)
		i := HeaderLen + rng.Intn(len(bad)-HeaderLen)
		bad[i] ^= 1 << uint(rng.Intn(8))

		sentinel := NewPIDResponse(PIDYaw, PID{Kp: 1234})
		// Enough sentinels to outlast a corrupted length byte
		stream := append(bad, append(append(sentinel, sentinel...), repeat(sentinel, 20)...)...)

		d := NewDecoder()
		results := d.Feed(stream)

		sawError := false
		sentinels := 0
		for _, r := range results {
			if r.Err != nil {
				sawError = true
				continue
			}
			if ev, ok := r.Event.(*PIDEvent); ok && ev.PID.Kp == 1234 {
				sentinels++
			}
		}
		assert.True(t, sawError, "round %d: corruption at byte %d not detected", round, i)
		assert.Greater(t, sentinels, 0, "round %d: decoder never recovered", round)
	}
}

func repeat(b []byte, n int) []byte {
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, b...)
	}
	return out
}

func TestFuzz_EncodeDecodeRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds(); round++ {
		group := PIDGroups[rng.Intn(len(PIDGroups))]
		pid := PID{
			Kp:       int16(rng.Intn(1 << 16)),
			Ki:       int16(rng.Intn(1 << 16)),
			Kd:       int16(rng.Intn(1 << 16)),
			IntLimit: int16(rng.Intn(1 << 16)),
		}

		results := NewCommandDecoder().Feed(NewSetPID(group, pid))
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		require.Equal(t, pid, results[0].Event.(*PIDEvent).PID, "round %d", round)
	}
}
