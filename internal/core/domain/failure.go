package domain

import (
	"errors"
	"net"
	"strings"
)

// Hint is the remediation category attached to backend/network-shaped failures.
type Hint string

const (
	HintNone         Hint = ""
	HintCheckBackend Hint = "check_backend"
	HintCheckNetwork Hint = "check_network"
)

func (h Hint) Sentence() string {
	switch h {
	case HintCheckBackend:
		return "Check that GPU compute is supported and its drivers are installed."
	case HintCheckNetwork:
		return "Check that the model host is reachable from this machine."
	default:
		return ""
	}
}

// Failure is the user-facing description of an error.
type Failure struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Hint    Hint   `json:"hint,omitempty"`
	Message string `json:"message"`
}

type failureKind struct {
	kind  error
	code  string
	title string
}

var failureKinds = []failureKind{
	{ErrUnsupportedBackend, "unsupported_backend", "Unsupported compute backend"},
	{ErrLoadTimeout, "load_timeout", "Model loading timed out"},
	{ErrLoadFailure, "load_failure", "Error loading model"},
	{ErrNotReady, "not_ready", "Model not loaded yet"},
	{ErrEmptyInput, "empty_input", "Please enter some text to analyze"},
	{ErrInference, "inference_error", "Analysis failed"},
	{ErrBusy, "busy", "Analysis in progress"},
	{ErrInvalidInput, "invalid_input", "Invalid request"},
}

// Describe turns err into a message legible without developer tools.
func Describe(err error) Failure {
	if err == nil {
		return Failure{}
	}

	f := Failure{Kind: "internal", Title: "Unexpected error", Detail: err.Error()}
	for _, k := range failureKinds {
		if errors.Is(err, k.kind) {
			f.Kind = k.code
			f.Title = k.title
			break
		}
	}

	switch {
	case errors.Is(err, ErrUnsupportedBackend):
		f.Hint = HintCheckBackend
	case errors.Is(err, ErrLoadFailure) && IsNetworkShaped(err):
		f.Hint = HintCheckNetwork
	}

	f.Message = f.Title + ": " + f.Detail
	if s := f.Hint.Sentence(); s != "" {
		f.Message += "\n" + s
	}
	return f
}

// IsNetworkShaped reports whether err looks like a transfer/reachability fault.
func IsNetworkShaped(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTemporary) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fetch") || strings.Contains(msg, "network")
}
