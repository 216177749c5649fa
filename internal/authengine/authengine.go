// Package authengine orchestrates primary directory authentication and
// second-factor dispatch (push or OTP) against the cloud 2FA service.
package authengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/worldposta/authproxy/internal/cloud2fa"
	"github.com/worldposta/authproxy/internal/configuration/schema"
	"github.com/worldposta/authproxy/internal/directory"
)

// AuthResult is the disjoint outcome of one authenticate() call.
type AuthResult string

const (
	ResultSuccess     AuthResult = "success"
	ResultBadCreds    AuthResult = "bad_credentials"
	ResultDisabled    AuthResult = "disabled"
	ResultExpired     AuthResult = "expired"
	ResultLocked      AuthResult = "locked"
	ResultNotFound    AuthResult = "not_found"
	ResultPushDenied  AuthResult = "push_denied"
	ResultPushTimeout AuthResult = "push_timeout"
	ResultPushFailed  AuthResult = "push_failed"
	ResultOTPInvalid  AuthResult = "otp_invalid"
	ResultError       AuthResult = "error"
)

// Factor is the second-factor kind the caller supplied, parsed from the
// password field.
type Factor int

const (
	FactorNone Factor = iota
	FactorPush
	FactorOTP
	FactorInvalid
)

// ParsedPassword is the result of splitting a RADIUS/LDAP password on its
// last comma into the real password and an optional factor suffix.
type ParsedPassword struct {
	RealPassword string
	Factor       Factor
	OTPCode      string
	RawFactor    string
}

// ParsePassword splits password on the *last* comma into (real_password,
// factor). No comma, or an empty suffix after the last comma, means
// factor = none. Any other factor text is interpreted case-insensitively
// as "push", as an OTP code (all digits, length >= 6), or else marked
// invalid for the caller to reject.
func ParsePassword(password string) ParsedPassword {
	idx := strings.LastIndexByte(password, ',')
	if idx < 0 {
		return ParsedPassword{RealPassword: password, Factor: FactorNone}
	}

	real := password[:idx]
	raw := password[idx+1:]

	switch {
	case strings.EqualFold(raw, "push"):
		return ParsedPassword{RealPassword: real, Factor: FactorPush, RawFactor: raw}
	case isOTPCode(raw):
		return ParsedPassword{RealPassword: real, Factor: FactorOTP, OTPCode: raw, RawFactor: raw}
	case raw == "":
		return ParsedPassword{RealPassword: real, Factor: FactorNone, RawFactor: raw}
	default:
		return ParsedPassword{RealPassword: real, Factor: FactorInvalid, RawFactor: raw}
	}
}

func isOTPCode(s string) bool {
	if len(s) < 6 {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// Request bundles the parameters an authenticate() call needs beyond the
// username/password pair.
type Request struct {
	Username   string
	Password   string
	DeviceInfo string
	IPAddress  string
	Mode       schema.RADIUSMode
}

// Engine is the auth engine surface: one instance is bound to a single
// directory profile (nil for pass-through) and a single cloud 2FA client.
type Engine struct {
	directory   directory.Client // nil means pass-through: primary auth always succeeds.
	cloud       cloud2fa.Client
	pushTimeout time.Duration
	failOpen    bool
	log         *logrus.Entry
}

// New builds an Engine. dirClient may be nil for a pass-through directory
// profile. failOpen controls only the cloud-2FA-unreachable case (send_push
// failing to get a requestId, or verify_totp erroring out): it never
// applies to a directory bind failure or to an explicit push denial, both
// of which are authoritative verdicts, not infrastructure trouble.
func New(dirClient directory.Client, cloud cloud2fa.Client, pushTimeout time.Duration, failOpen bool, log *logrus.Entry) *Engine {
	return &Engine{directory: dirClient, cloud: cloud, pushTimeout: pushTimeout, failOpen: failOpen, log: log}
}

// Authenticate is the engine's public contract: primary bind, then second
// factor dispatch, returning a terminal AuthResult and a human-readable
// message suitable for a Reply-Message / LDAP diagnostic field. Primary
// auth must succeed before any second-factor call is issued — no push is
// sent for a credential that fails the first step, so push emission says
// nothing about whether the user exists. The returned message does differ
// between an unknown user and a wrong password.
func (e *Engine) Authenticate(ctx context.Context, req Request) (AuthResult, string) {
	// Directory servers match names in NFC; normalize once here so the
	// search filter and the cloud user id agree on the same byte sequence.
	req.Username = norm.NFC.String(req.Username)

	parsed := ParsePassword(req.Password)

	primaryResult, msg := e.authenticatePrimary(req.Username, parsed.RealPassword)
	if primaryResult != ResultSuccess {
		return primaryResult, msg
	}

	return e.dispatchFactor(ctx, req, parsed)
}

func (e *Engine) authenticatePrimary(username, password string) (AuthResult, string) {
	if e.directory == nil {
		return ResultSuccess, "Authentication successful"
	}

	dn, found, err := e.directory.ResolveDN(username)
	if err != nil {
		e.log.WithError(err).WithField("user", username).Warn("directory lookup failed")
		return ResultError, "Authentication failed"
	}

	if !found {
		e.log.WithField("user", username).Warn("user not found in directory")
		return ResultNotFound, "User not found"
	}

	switch e.directory.BindAsUser(dn, password) {
	case directory.BindErrorNone:
		return ResultSuccess, "Authentication successful"
	case directory.BindErrorBadCredentials:
		return ResultBadCreds, "Invalid password"
	case directory.BindErrorAccountDisabled:
		return ResultDisabled, "Account disabled"
	case directory.BindErrorAccountExpired:
		return ResultExpired, "Account expired"
	case directory.BindErrorAccountLocked:
		return ResultLocked, "Account locked"
	default:
		return ResultError, "Authentication failed"
	}
}

// dispatchFactor decides which second-factor flow applies: push is used
// whenever the factor is explicitly "push", or when no factor was
// supplied and the binding's mode is auto/push; a 6+ digit factor is
// treated as an OTP code; otp mode with no factor demands one explicitly;
// anything else is an unrecognized-factor error.
func (e *Engine) dispatchFactor(ctx context.Context, req Request, parsed ParsedPassword) (AuthResult, string) {
	mode := req.Mode

	switch {
	case parsed.Factor == FactorPush:
		return e.pushFlow(ctx, req)
	case parsed.Factor == FactorNone && (mode == schema.RADIUSModeAuto || mode == "push"):
		return e.pushFlow(ctx, req)
	case parsed.Factor == FactorOTP:
		return e.otpFlow(ctx, req.Username, parsed.OTPCode)
	case parsed.Factor == FactorNone && mode == "otp":
		return ResultError, "OTP code required"
	default:
		return ResultError, fmt.Sprintf("Unknown factor: %s", parsed.RawFactor)
	}
}

func (e *Engine) pushFlow(ctx context.Context, req Request) (AuthResult, string) {
	requestID, err := e.cloud.SendPush(ctx, req.Username, cloud2fa.PushMetadata{
		ServiceName: "Authentication",
		DeviceInfo:  req.DeviceInfo,
		IPAddress:   req.IPAddress,
	})
	if err != nil || requestID == "" {
		if e.failOpen {
			e.log.WithField("user", req.Username).Warn("fail-open: cloud 2fa unreachable, accepting primary auth")
			return ResultSuccess, "Authentication successful"
		}

		return ResultPushFailed, "Push notification failed"
	}

	deadline := time.Now().Add(e.pushTimeout)

	switch e.cloud.AwaitPush(ctx, requestID, deadline) {
	case cloud2fa.PushApproved:
		return ResultSuccess, "Authentication successful"
	case cloud2fa.PushDenied:
		return ResultPushDenied, "Push notification denied"
	default:
		return ResultPushTimeout, "Push notification timed out"
	}
}

func (e *Engine) otpFlow(ctx context.Context, username, code string) (AuthResult, string) {
	valid, err := e.cloud.VerifyTOTP(ctx, username, code)
	if err != nil {
		e.log.WithError(err).WithField("user", username).Warn("otp verification errored")

		if e.failOpen {
			e.log.WithField("user", username).Warn("fail-open: cloud 2fa unreachable, accepting primary auth")
			return ResultSuccess, "Authentication successful"
		}

		return ResultOTPInvalid, "Invalid verification code"
	}

	if !valid {
		return ResultOTPInvalid, "Invalid verification code"
	}

	return ResultSuccess, "Authentication successful"
}
