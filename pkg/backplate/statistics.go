// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backplate

import (
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	CRCRejects       uint64
	NoiseBytes       uint64
	LengthMismatches uint64
	AnomalousValues  uint64
	InvalidTemp      uint64
	InvalidHumidity  uint64
	InvalidVoltage   uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decoded frame and its validation result
func (s *Statistics) Update(f Frame, validationErrors []ValidationError) {
	s.TotalFrames++

	if len(validationErrors) == 0 {
		s.ValidFrames++
	}

	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyLengthMismatch:
			s.LengthMismatches++
		case AnomalyInvalidTemp:
			s.InvalidTemp++
			s.AnomalousValues++
		case AnomalyInvalidHumidity:
			s.InvalidHumidity++
			s.AnomalousValues++
		case AnomalyInvalidVoltage:
			s.InvalidVoltage++
			s.AnomalousValues++
		}
	}

	s.LastUpdateTime = time.Now()
}

// UpdateParser copies the parser's framing counters.
// Frames rejected by the parser never reach Update, so CRC failures and
// discarded noise are taken from the parser itself.
func (s *Statistics) UpdateParser(ps ParserStats) {
	s.CRCRejects = ps.CRCRejects
	s.NoiseBytes = ps.NoiseDropped
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		errorCount := s.CRCRejects + s.LengthMismatches + s.AnomalousValues
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, lengthPercent, anomalousPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		lengthPercent = float64(s.LengthMismatches) * 100.0 / float64(s.TotalFrames)
		anomalousPercent = float64(s.AnomalousValues) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.CRCRejects > 0 {
		result += fmt.Sprintf("CRC Rejects:     %8d\n", s.CRCRejects)
	}
	if s.NoiseBytes > 0 {
		result += fmt.Sprintf("Noise Bytes:     %8d\n", s.NoiseBytes)
	}
	if s.LengthMismatches > 0 {
		result += fmt.Sprintf("Length Mismatch: %8d (%.1f%%)\n", s.LengthMismatches, lengthPercent)
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d (%.1f%%)\n", s.AnomalousValues, anomalousPercent)
		if s.InvalidTemp > 0 {
			result += fmt.Sprintf("  Invalid Temp:     %5d\n", s.InvalidTemp)
		}
		if s.InvalidHumidity > 0 {
			result += fmt.Sprintf("  Invalid Humidity: %5d\n", s.InvalidHumidity)
		}
		if s.InvalidVoltage > 0 {
			result += fmt.Sprintf("  Invalid Voltage:  %5d\n", s.InvalidVoltage)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
