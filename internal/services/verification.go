package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// panPattern is the structural shape of a permanent account number: five
// letters, four digits, one check letter.
var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

// panHolderTypes are the letters permitted in the fourth position, which
// encodes the holder type (P individual, C company, H HUF, F firm, and so
// on).
const panHolderTypes = "ABCFGHJLPT"

// ValidatePAN structurally checks a permanent account number. It returns a
// specific reason on failure and never attempts a correction.
func ValidatePAN(pan string) error {
	if pan == "" {
		return fmt.Errorf("PAN is missing")
	}
	if !panPattern.MatchString(pan) {
		return fmt.Errorf("PAN %q does not match the required pattern of five letters, four digits, and a check letter", pan)
	}
	if !strings.ContainsRune(panHolderTypes, rune(pan[3])) {
		return fmt.Errorf("PAN %q has invalid holder-type letter %q in the fourth position", pan, pan[3])
	}
	return nil
}

// OTPConfirmer completes the e-verification handshake for a filed return.
type OTPConfirmer interface {
	Confirm(ctx context.Context, pan, runID string) error
}

// StaticOTP is the deterministic default confirmer. Fail makes every
// confirmation fail, for exercising the review path.
type StaticOTP struct {
	Fail bool
}

// Confirm implements OTPConfirmer.
func (s StaticOTP) Confirm(ctx context.Context, pan, runID string) error {
	if s.Fail {
		return fmt.Errorf("one-time password confirmation was rejected")
	}
	return nil
}

// Verifier is the final stage: structural identity checks, the filing
// acknowledgement, and e-verification. An invalid PAN suspends the run with
// the structural reason; no acknowledgement is ever issued for one.
type Verifier struct {
	otp OTPConfirmer
	now func() time.Time
}

// NewVerifier builds the verification stage. A nil confirmer gets the
// deterministic default.
func NewVerifier(otp OTPConfirmer) *Verifier {
	if otp == nil {
		otp = StaticOTP{}
	}
	return &Verifier{otp: otp, now: time.Now}
}

func (v *Verifier) Name() string { return StageVerify }

// Execute implements Stage.
func (v *Verifier) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	if state.Form == nil {
		return StageResult{
			Outcome: OutcomeFatal,
			Summary: "form missing at verification",
			Reason:  "verification reached without an assembled form",
		}, nil
	}

	if err := ValidatePAN(state.Taxpayer.PAN); err != nil {
		return StageResult{
			Outcome: OutcomeNeedsReview,
			Summary: "PAN failed structural validation",
			Details: map[string]any{"pan": state.Taxpayer.PAN},
			Reason:  fmt.Sprintf("%v; correct the PAN and resume", err),
		}, nil
	}
	if state.Form.PartA.PAN != state.Taxpayer.PAN {
		return StageResult{
			Outcome: OutcomeFatal,
			Summary: "form PAN does not match taxpayer PAN",
			Reason:  "assembled form carries a different PAN than the taxpayer profile",
		}, nil
	}

	ackID := v.newAckID()
	if err := v.otp.Confirm(ctx, state.Taxpayer.PAN, state.RunID); err != nil {
		return StageResult{
			Outcome: OutcomeNeedsReview,
			Summary: "e-verification was not confirmed",
			Details: map[string]any{"ackId": ""},
			Reason:  fmt.Sprintf("e-verification failed: %v; resume to retry", err),
		}, nil
	}

	state.AckID = ackID
	return StageResult{
		Outcome: OutcomeContinue,
		Summary: fmt.Sprintf("return filed and e-verified with acknowledgement %s", ackID),
		Details: map[string]any{"ackId": ackID},
	}, nil
}

// newAckID issues a filing acknowledgement identifier. The UTC timestamp
// prefix keeps acknowledgements sortable by creation; the random suffix
// keeps them unique within a second.
func (v *Verifier) newAckID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return "ITR" + v.now().UTC().Format("20060102150405") + suffix
}
