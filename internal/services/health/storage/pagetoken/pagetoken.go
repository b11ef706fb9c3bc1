// Package pagetoken encodes the resumable cursor of a filtered record read.
package pagetoken

import (
	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"go.einride.tech/aip/pagination"
)

// StartTimeMillis marks a token that starts at the beginning of the sequence.
const StartTimeMillis int64 = -1

// version is bumped whenever the encoded field set changes.
const version = 1

// PageToken is a position in a time-ordered record sequence.
//
// TimeMillis is the time boundary of the last returned row and Offset counts
// the rows at exactly that boundary that were already returned.
type PageToken struct {
	Ascending  bool
	TimeMillis int64
	Offset     int32
}

// encodedToken is the wire form of a PageToken.
type encodedToken struct {
	Version    int32
	Ascending  bool
	TimeMillis int64
	Offset     int32
}

// OfAscending returns the start-of-sequence token for the given order.
func OfAscending(ascending bool) PageToken {
	return PageToken{Ascending: ascending, TimeMillis: StartTimeMillis}
}

// Of returns a token that resumes after offset rows at timeMillis.
func Of(ascending bool, timeMillis int64, offset int32) (PageToken, error) {
	if timeMillis < 0 {
		return PageToken{}, apperrors.Errorf(apperrors.CodePageTokenInvalid, "page token time must not be negative: %d", timeMillis)
	}
	if offset < 0 {
		return PageToken{}, apperrors.Errorf(apperrors.CodePageTokenInvalid, "page token offset must not be negative: %d", offset)
	}
	return PageToken{Ascending: ascending, TimeMillis: timeMillis, Offset: offset}, nil
}

// IsStart reports whether the token points at the beginning of the sequence.
func (p PageToken) IsStart() bool {
	return p.TimeMillis == StartTimeMillis
}

// Encode returns the opaque string form of the token.
func (p PageToken) Encode() string {
	return pagination.EncodePageTokenStruct(encodedToken{
		Version:    version,
		Ascending:  p.Ascending,
		TimeMillis: p.TimeMillis,
		Offset:     p.Offset,
	})
}

// Decode parses a token produced by Encode.
func Decode(value string) (PageToken, error) {
	if value == "" {
		return PageToken{}, apperrors.New(apperrors.CodePageTokenInvalid, "page token is empty")
	}
	var decoded encodedToken
	if err := pagination.DecodePageTokenStruct(value, &decoded); err != nil {
		return PageToken{}, apperrors.Wrap(apperrors.CodePageTokenInvalid, "decode page token", err)
	}
	if decoded.Version != version {
		return PageToken{}, apperrors.Errorf(apperrors.CodePageTokenInvalid, "unsupported page token version: %d", decoded.Version)
	}
	if decoded.TimeMillis < StartTimeMillis || decoded.Offset < 0 {
		return PageToken{}, apperrors.New(apperrors.CodePageTokenInvalid, "page token position out of range")
	}
	if decoded.TimeMillis == StartTimeMillis && decoded.Offset != 0 {
		return PageToken{}, apperrors.New(apperrors.CodePageTokenInvalid, "start page token must not carry an offset")
	}
	return PageToken{
		Ascending:  decoded.Ascending,
		TimeMillis: decoded.TimeMillis,
		Offset:     decoded.Offset,
	}, nil
}

// Next returns the token that follows a full page.
//
// pageTimes holds the time boundary of every returned row in order. Rows that
// share the last boundary are counted into the offset; when the whole page
// sits on the incoming boundary the incoming offset carries over.
func Next(current PageToken, pageTimes []int64) PageToken {
	if len(pageTimes) == 0 {
		return current
	}
	last := pageTimes[len(pageTimes)-1]
	var atBoundary int32
	for i := len(pageTimes) - 1; i >= 0 && pageTimes[i] == last; i-- {
		atBoundary++
	}
	offset := atBoundary
	if int(atBoundary) == len(pageTimes) && !current.IsStart() && current.TimeMillis == last {
		offset += current.Offset
	}
	return PageToken{Ascending: current.Ascending, TimeMillis: last, Offset: offset}
}
