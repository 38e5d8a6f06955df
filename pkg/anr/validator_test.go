/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: validator_test.go
Description: Tests for the ANR validation engine. Covers each rejection
factor in table order with its confidence level, the power-save and
low-battery threshold adjustment, the network-transition exemption for long
stalls, the full-accept path, and the panic-to-low-confidence fallback.
*/

package anr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/akaylee-crashkit/pkg/interfaces"
)

// fakeOracle is a deterministic DeviceOracle double
type fakeOracle struct {
	importance  interfaces.ProcessImportance
	screenOn    bool
	powerSave   bool
	battery     float64
	networkLost bool
	panicOn     string
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		importance: interfaces.ImportanceForeground,
		screenOn:   true,
		battery:    0.8,
	}
}

func (f *fakeOracle) ProcessImportance() interfaces.ProcessImportance { return f.importance }
func (f *fakeOracle) ScreenOn() bool                                  { return f.screenOn }

func (f *fakeOracle) PowerSave() bool {
	if f.panicOn == "power_save" {
		panic("oracle unavailable")
	}
	return f.powerSave
}

func (f *fakeOracle) BatteryFraction() float64 { return f.battery }
func (f *fakeOracle) Charging() bool           { return false }

func (f *fakeOracle) Orientation() interfaces.Orientation      { return interfaces.OrientationPortrait }
func (f *fakeOracle) MemoryPressure() interfaces.MemoryPressure { return interfaces.MemoryPressureLow }

func (f *fakeOracle) VPNActive() bool      { return false }
func (f *fakeOracle) ProxyActive() bool    { return false }
func (f *fakeOracle) BootTimeMs() int64    { return 0 }
func (f *fakeOracle) UptimeMs() int64      { return 0 }
func (f *fakeOracle) TimezoneID() string   { return "UTC" }
func (f *fakeOracle) NetworkType() string  { return "wifi" }

func (f *fakeOracle) NetworkLostRecently(window time.Duration) bool { return f.networkLost }
func (f *fakeOracle) DiskThroughput() (float64, float64)            { return 0, 0 }

func TestValidateRejectsBackgroundedProcess(t *testing.T) {
	testCases := []struct {
		name       string
		importance interfaces.ProcessImportance
	}{
		{name: "service", importance: interfaces.ImportanceService},
		{name: "background", importance: interfaces.ImportanceBackground},
		{name: "unknown", importance: interfaces.ImportanceUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewValidator(newFakeOracle(), DefaultThresholdMs, nil)
			verdict := v.Validate(16000, tc.importance, true)

			assert.False(t, verdict.Valid)
			assert.Equal(t, FactorBackgrounded, verdict.BlockingFactor)
			assert.Equal(t, 99, verdict.Confidence)
		})
	}
}

func TestValidateVisibleProcessPassesImportance(t *testing.T) {
	v := NewValidator(newFakeOracle(), DefaultThresholdMs, nil)
	verdict := v.Validate(16000, interfaces.ImportanceVisible, true)
	assert.True(t, verdict.Valid)
}

func TestValidateRejectsScreenOff(t *testing.T) {
	v := NewValidator(newFakeOracle(), DefaultThresholdMs, nil)
	verdict := v.Validate(16000, interfaces.ImportanceForeground, false)

	assert.False(t, verdict.Valid)
	assert.Equal(t, FactorScreenOff, verdict.BlockingFactor)
	assert.Equal(t, 95, verdict.Confidence)
}

func TestValidatePowerAdjustment(t *testing.T) {
	testCases := []struct {
		name      string
		powerSave bool
		battery   float64
		blockedMs int64
		valid     bool
		adjusted  int64
	}{
		{name: "power save raises threshold", powerSave: true, battery: 0.8, blockedMs: 16000, valid: false, adjusted: PowerSaveThresholdMs},
		{name: "power save cleared by long stall", powerSave: true, battery: 0.8, blockedMs: 21000, valid: true, adjusted: PowerSaveThresholdMs},
		{name: "low battery raises threshold", powerSave: false, battery: 0.03, blockedMs: 16000, valid: false, adjusted: PowerSaveThresholdMs},
		{name: "healthy battery keeps threshold", powerSave: false, battery: 0.5, blockedMs: 16000, valid: true, adjusted: DefaultThresholdMs},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			oracle := newFakeOracle()
			oracle.powerSave = tc.powerSave
			oracle.battery = tc.battery

			v := NewValidator(oracle, DefaultThresholdMs, nil)
			verdict := v.Validate(tc.blockedMs, interfaces.ImportanceForeground, true)

			assert.Equal(t, tc.valid, verdict.Valid)
			assert.Equal(t, tc.adjusted, verdict.Factors.AdjustedThresholdMs)
			if !tc.valid {
				assert.Equal(t, FactorTooShort, verdict.BlockingFactor)
				assert.Equal(t, 80, verdict.Confidence)
			}
		})
	}
}

func TestValidateNetworkTransition(t *testing.T) {
	testCases := []struct {
		name      string
		blockedMs int64
		valid     bool
	}{
		{name: "short stall during loss is rejected", blockedMs: 16000, valid: false},
		{name: "long stall during loss is real", blockedMs: 25000, valid: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			oracle := newFakeOracle()
			oracle.networkLost = true

			v := NewValidator(oracle, DefaultThresholdMs, nil)
			verdict := v.Validate(tc.blockedMs, interfaces.ImportanceForeground, true)

			assert.Equal(t, tc.valid, verdict.Valid)
			assert.True(t, verdict.Factors.NetworkLost)
			if !tc.valid {
				assert.Equal(t, FactorNetworkLoss, verdict.BlockingFactor)
				assert.Equal(t, 85, verdict.Confidence)
			}
		})
	}
}

func TestValidateRejectsShortStall(t *testing.T) {
	v := NewValidator(newFakeOracle(), DefaultThresholdMs, nil)
	verdict := v.Validate(12000, interfaces.ImportanceForeground, true)

	assert.False(t, verdict.Valid)
	assert.Equal(t, FactorTooShort, verdict.BlockingFactor)
	assert.Equal(t, 80, verdict.Confidence)
}

func TestValidateAcceptsRealANR(t *testing.T) {
	v := NewValidator(newFakeOracle(), DefaultThresholdMs, nil)
	verdict := v.Validate(16000, interfaces.ImportanceForeground, true)

	require.True(t, verdict.Valid)
	assert.Equal(t, 99, verdict.Confidence)
	assert.Empty(t, verdict.BlockingFactor)
	assert.Equal(t, int64(DefaultThresholdMs), verdict.Factors.AdjustedThresholdMs)
}

func TestValidateOracleFailureAcceptsWithLowConfidence(t *testing.T) {
	oracle := newFakeOracle()
	oracle.panicOn = "power_save"

	v := NewValidator(oracle, DefaultThresholdMs, nil)
	verdict := v.Validate(16000, interfaces.ImportanceForeground, true)

	assert.True(t, verdict.Valid)
	assert.Equal(t, 50, verdict.Confidence)
	assert.Equal(t, "validation_error", verdict.Reason)
}

func TestValidateCustomThreshold(t *testing.T) {
	v := NewValidator(newFakeOracle(), 5000, nil)

	assert.True(t, v.Validate(6000, interfaces.ImportanceForeground, true).Valid)
	assert.False(t, v.Validate(4000, interfaces.ImportanceForeground, true).Valid)

	v.SetThreshold(10000)
	assert.False(t, v.Validate(6000, interfaces.ImportanceForeground, true).Valid)
}

func TestValidateZeroThresholdFallsBack(t *testing.T) {
	v := NewValidator(newFakeOracle(), 0, nil)
	assert.Equal(t, int64(DefaultThresholdMs), v.thresholdMs)
}
