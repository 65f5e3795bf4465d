package vfs

import (
	"github.com/pkg/errors"
)

const (
	MinPackedYear = 1980
	MaxPackedYear = MinPackedYear + 127
)

// PackDate packs a calendar date as (year-1980)<<9 | month<<5 | day. Years
// outside 1980..2107 do not fit the seven year bits and are rejected.
func PackDate(year, month, day int) (uint16, error) {
	if year < MinPackedYear || year > MaxPackedYear {
		return 0, errors.Errorf("year %d cannot be packed, supported range is %d-%d", year, MinPackedYear, MaxPackedYear)
	}
	if month < 1 || month > 12 {
		return 0, errors.Errorf("month %d out of range", month)
	}
	if day < 1 || day > 31 {
		return 0, errors.Errorf("day %d out of range", day)
	}

	return uint16((year-MinPackedYear)<<9 | month<<5 | day), nil
}

func UnpackDate(date uint16) (year, month, day int) {
	return int(date>>9) + MinPackedYear, int(date>>5) & 0x0F, int(date) & 0x1F
}

// PackTime packs hour<<11 | minute<<5 | second/2. Odd seconds lose one
// second.
func PackTime(hour, minute, second int) uint16 {
	return uint16((hour&0x1F)<<11 | (minute&0x3F)<<5 | (second/2)&0x1F)
}

func UnpackTime(t uint16) (hour, minute, second int) {
	return int(t >> 11), int(t>>5) & 0x3F, (int(t) & 0x1F) * 2
}
