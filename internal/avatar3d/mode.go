package avatar3d

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownMode = errors.New("unknown mode")

type Mode int32

const (
	ModeIdle Mode = iota
	ModeSpeak
	ModeWhisper
	ModeDance
)

var modeNames = [...]string{
	ModeIdle:    "idle",
	ModeSpeak:   "speak",
	ModeWhisper: "whisper",
	ModeDance:   "dance",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int32(m))
	}
	return modeNames[m]
}

func (m Mode) Valid() bool {
	return m >= ModeIdle && m <= ModeDance
}

func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return ModeIdle, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int32(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
