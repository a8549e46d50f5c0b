// Package pipeline owns the file-to-insight state machine: a submitted file
// moves from Idle to Loading and ends in Insight or Error until dismissed.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/KaramelBytes/dropsight/internal/analysis"
	"github.com/KaramelBytes/dropsight/internal/upload"
)

// Kind is the active variant of the view state.
type Kind uint8

const (
	Idle Kind = iota
	Loading
	ShowingInsight
	ShowingError
)

var kindNames = [...]string{"uploading-idle", "loading", "insight", "error"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Terminal reports whether the state only leaves through Dismiss.
func (k Kind) Terminal() bool { return k == ShowingInsight || k == ShowingError }

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown state %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

var (
	_ msgpack.CustomEncoder = Kind(0)
	_ msgpack.CustomDecoder = (*Kind)(nil)
)

func (k Kind) EncodeMsgpack(enc *msgpack.Encoder) error { return enc.EncodeString(k.String()) }

func (k *Kind) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	return k.UnmarshalText([]byte(s))
}

// Snapshot is an immutable copy of the controller state handed to presenters.
// File and ProcessingTimeMs are nil while Idle.
type Snapshot struct {
	Kind             Kind                 `json:"state" msgpack:"state"`
	RunID            string               `json:"runId,omitempty" msgpack:"runId,omitempty"`
	Insight          *analysis.Insight    `json:"insight,omitempty" msgpack:"insight,omitempty"`
	Message          string               `json:"message,omitempty" msgpack:"message,omitempty"`
	File             *upload.UploadedFile `json:"file,omitempty" msgpack:"file,omitempty"`
	ProcessingTimeMs *float64             `json:"elapsedMs,omitempty" msgpack:"elapsedMs,omitempty"`
	UploadError      string               `json:"uploadError,omitempty" msgpack:"uploadError,omitempty"`
	Dragging         bool                 `json:"dragging" msgpack:"dragging"`
}

// OverlapPolicy decides what happens to a file submitted while another run is Loading.
type OverlapPolicy uint8

const (
	// IgnoreWhileLoading rejects the new file with ErrBusy.
	IgnoreWhileLoading OverlapPolicy = iota
	// CancelAndRestart cancels the in-flight run; the newest run wins.
	CancelAndRestart
)

func (p OverlapPolicy) String() string {
	if p == CancelAndRestart {
		return "restart"
	}
	return "ignore"
}

// ParseOverlap accepts "ignore" or "restart".
func ParseOverlap(s string) (OverlapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return IgnoreWhileLoading, nil
	case "restart":
		return CancelAndRestart, nil
	}
	return IgnoreWhileLoading, fmt.Errorf("unknown overlap policy %q (want ignore or restart)", s)
}

var (
	// ErrBusy rejects a submission while a run is Loading under IgnoreWhileLoading.
	ErrBusy = errors.New("a file is already being processed")
	// ErrResultPending rejects a submission while a result is shown.
	ErrResultPending = errors.New("dismiss the current result before uploading another file")
	// ErrNothingToDismiss is returned by Dismiss outside Insight and Error.
	ErrNothingToDismiss = errors.New("nothing to dismiss")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline closed")
)

// Error messages for terminal Error states.
const (
	msgEmpty        = "no insight could be derived from this file"
	msgReadPrefix   = "failed to read file: "
	msgFaultPrefix  = "failed to analyze data: "
	msgTooFewFormat = "not enough data to analyze: need at least 2 rows, got %d"
)
