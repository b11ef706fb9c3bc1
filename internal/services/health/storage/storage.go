// Package storage defines the persistence contracts for health records,
// medical resources and the change log consumed by downstream readers.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained row already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// PlatformPackageName attributes background work (retention sweeps) to the
// platform instead of a third-party app.
const PlatformPackageName = "platform"

// RecordType identifies the kind of health data point a record carries.
type RecordType int32

const (
	RecordTypeUnknown RecordType = iota
	RecordTypeSteps
	RecordTypeHeartRate
	RecordTypeWeight
	RecordTypeActiveCaloriesBurned
	RecordTypeHydration
)

var recordTypeNames = map[RecordType]string{
	RecordTypeSteps:                "steps",
	RecordTypeHeartRate:            "heart_rate",
	RecordTypeWeight:               "weight",
	RecordTypeActiveCaloriesBurned: "active_calories_burned",
	RecordTypeHydration:            "hydration",
}

// RecordTypes returns every supported record type in id order.
func RecordTypes() []RecordType {
	return []RecordType{
		RecordTypeSteps,
		RecordTypeHeartRate,
		RecordTypeWeight,
		RecordTypeActiveCaloriesBurned,
		RecordTypeHydration,
	}
}

// String returns the snake_case name of the record type.
func (t RecordType) String() string {
	if name, ok := recordTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is a supported record type.
func (t RecordType) Valid() bool {
	_, ok := recordTypeNames[t]
	return ok
}

// ParseRecordType resolves a record type by its snake_case name.
func ParseRecordType(value string) (RecordType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for recordType, name := range recordTypeNames {
		if name == value {
			return recordType, nil
		}
	}
	return RecordTypeUnknown, fmt.Errorf("unknown record type: %q", value)
}

// DeviceType classifies the device that produced a record.
type DeviceType int32

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeWatch
	DeviceTypePhone
	DeviceTypeScale
	DeviceTypeRing
	DeviceTypeFitnessBand
)

// Device describes the hardware that recorded a data point.
type Device struct {
	Manufacturer string
	Model        string
	Type         DeviceType
}

// Payload is the type-specific part of a record.
type Payload interface {
	RecordType() RecordType
}

// Steps counts steps taken over an interval.
type Steps struct {
	Count int64
}

// HeartRate is an instantaneous heart rate sample.
type HeartRate struct {
	BeatsPerMinute int64
}

// Weight is an instantaneous body weight measurement.
type Weight struct {
	Grams float64
}

// ActiveCaloriesBurned is the active energy spent over an interval.
type ActiveCaloriesBurned struct {
	Kilocalories float64
}

// Hydration is the volume of liquid drunk over an interval.
type Hydration struct {
	Milliliters float64
}

func (Steps) RecordType() RecordType                { return RecordTypeSteps }
func (HeartRate) RecordType() RecordType            { return RecordTypeHeartRate }
func (Weight) RecordType() RecordType               { return RecordTypeWeight }
func (ActiveCaloriesBurned) RecordType() RecordType { return RecordTypeActiveCaloriesBurned }
func (Hydration) RecordType() RecordType            { return RecordTypeHydration }

// Record is one typed health data point.
//
// Instant records (heart rate, weight) use StartTime as the sample time and
// leave EndTime zero.
type Record struct {
	ID                  string
	PackageName         string
	Device              Device
	ClientRecordID      string
	ClientRecordVersion int64
	StartTime           time.Time
	EndTime             time.Time
	ZoneOffsetSeconds   int32
	LastModifiedTime    time.Time
	Payload             Payload
}

// Type returns the record type carried by the payload.
func (r Record) Type() RecordType {
	if r.Payload == nil {
		return RecordTypeUnknown
	}
	return r.Payload.RecordType()
}

// RecordPage is one page of a filtered read.
type RecordPage struct {
	Records       []Record
	NextPageToken string
}

// TimeRange is a half-open [Start, End) window; a zero bound is unbounded.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Validate rejects inverted ranges.
func (r TimeRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && !r.End.After(r.Start) {
		return fmt.Errorf("time range end must be after start")
	}
	return nil
}

// RecordIDFilter names one record by type and either its id or the client
// record id its owner supplied.
type RecordIDFilter struct {
	RecordType     RecordType
	ID             string
	ClientRecordID string
}
