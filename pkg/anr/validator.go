/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: validator.go
Description: ANR validation engine for Akaylee CrashKit. Decides whether a
detected main-loop stall is a real user-facing ANR by walking an ordered
factor table: process importance at detection, screen state at detection,
power-adjusted threshold, recent network loss, and finally the measured
duration against the adjusted threshold. Any internal error returns valid
with confidence 50; over-reporting is cheaper than missing a real ANR. The
engine is pure over its inputs plus the device oracle.
*/

package anr

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
	"github.com/kleascm/akaylee-crashkit/pkg/interfaces"
)

// Threshold defaults and the power-save adjustment
const (
	DefaultThresholdMs   = 15000 // normal adjusted threshold
	PowerSaveThresholdMs = 20000 // threshold under power-save or low battery
	LowBatteryFraction   = 0.05  // below this the power adjustment kicks in
	NetworkLossWindow    = 30 * time.Second
	NetworkLossShortMs   = 20000 // stalls shorter than this during a loss are network hiccups
)

// Rejection factor tags carried in the validation verdict
const (
	FactorBackgrounded = "process_backgrounded"
	FactorScreenOff    = "screen_off"
	FactorNetworkLoss  = "network_transition"
	FactorTooShort     = "below_threshold"
)

// Validator classifies detected stalls against live device state
type Validator struct {
	oracle interfaces.DeviceOracle
	logger *logrus.Logger

	// thresholdMs is the configured normal threshold; the power adjustment
	// raises it to PowerSaveThresholdMs when active
	thresholdMs int64
}

// NewValidator creates a validation engine over the device oracle
func NewValidator(oracle interfaces.DeviceOracle, thresholdMs int64, logger *logrus.Logger) *Validator {
	if thresholdMs <= 0 {
		thresholdMs = DefaultThresholdMs
	}
	return &Validator{
		oracle:      oracle,
		thresholdMs: thresholdMs,
		logger:      logger,
	}
}

// SetThreshold updates the normal threshold
func (v *Validator) SetThreshold(thresholdMs int64) {
	v.thresholdMs = thresholdMs
}

// Validate decides whether a stall of blockedMs is a real ANR. Importance
// and screen state are the values captured at detection time; everything
// else is read live from the oracle.
func (v *Validator) Validate(blockedMs int64, importance interfaces.ProcessImportance, screenOn bool) (verdict *core.ANRValidation) {
	verdict = &core.ANRValidation{
		Factors: core.ANRValidationFactors{
			ProcessImportance: importance,
			ScreenOn:          screenOn,
		},
	}

	defer func() {
		if r := recover(); r != nil {
			if v.logger != nil {
				v.logger.WithField("panic", r).Error("ANR validation failed, accepting with low confidence")
			}
			verdict.Valid = true
			verdict.Reason = "validation_error"
			verdict.Confidence = 50
			verdict.BlockingFactor = ""
		}
	}()

	// Factor 1: a backgrounded process cannot block the user
	if importance != interfaces.ImportanceForeground && importance != interfaces.ImportanceVisible {
		verdict.Valid = false
		verdict.Reason = "process not user-visible at detection"
		verdict.Confidence = 99
		verdict.BlockingFactor = FactorBackgrounded
		return verdict
	}

	// Factor 2: nobody is watching a dark screen
	if !screenOn {
		verdict.Valid = false
		verdict.Reason = "screen off at detection"
		verdict.Confidence = 95
		verdict.BlockingFactor = FactorScreenOff
		return verdict
	}

	// Factor 3: power adjustment raises the bar on throttled devices
	powerSave := v.oracle.PowerSave()
	battery := v.oracle.BatteryFraction()
	adjusted := v.thresholdMs
	if powerSave || battery < LowBatteryFraction {
		adjusted = PowerSaveThresholdMs
	}
	verdict.Factors.PowerSave = powerSave
	verdict.Factors.BatteryFraction = battery
	verdict.Factors.AdjustedThresholdMs = adjusted

	// Factor 4: a short stall right after losing connectivity is the
	// network stack, not the app
	networkLost := v.oracle.NetworkLostRecently(NetworkLossWindow)
	verdict.Factors.NetworkLost = networkLost
	if networkLost && blockedMs < NetworkLossShortMs {
		verdict.Valid = false
		verdict.Reason = "short stall during network transition"
		verdict.Confidence = 85
		verdict.BlockingFactor = FactorNetworkLoss
		return verdict
	}

	// Factor 5: the stall must clear the adjusted threshold
	if blockedMs < adjusted {
		verdict.Valid = false
		verdict.Reason = "stall below adjusted threshold"
		verdict.Confidence = 80
		verdict.BlockingFactor = FactorTooShort
		return verdict
	}

	verdict.Valid = true
	verdict.Reason = "all factors passed"
	verdict.Confidence = 99
	return verdict
}
