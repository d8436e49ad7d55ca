package approval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"loyaltybot/internal/models"
)

var (
	// ErrCallbackFormat is returned for button payloads other than approve:<row> or reject:<row>.
	ErrCallbackFormat = errors.New("invalid callback data")

	// ErrNotify means the verdict is stored but the submitter could not be told.
	ErrNotify = errors.New("submitter notification failed")

	ErrForbidden = errors.New("only the reviewer can decide")
)

type Verdict string

const (
	VerdictApprove Verdict = models.CallbackApprove
	VerdictReject  Verdict = models.CallbackReject
)

// Action is a parsed reviewer button press.
type Action struct {
	Verdict Verdict
	Row     int
}

func ParseCallback(data string) (Action, error) {
	verdict, rowStr, ok := strings.Cut(strings.TrimSpace(data), ":")
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrCallbackFormat, data)
	}

	v := Verdict(verdict)
	if v != VerdictApprove && v != VerdictReject {
		return Action{}, fmt.Errorf("%w: unknown verdict %q", ErrCallbackFormat, verdict)
	}

	row, err := strconv.Atoi(rowStr)
	if err != nil || row < 2 {
		return Action{}, fmt.Errorf("%w: bad row %q", ErrCallbackFormat, rowStr)
	}
	return Action{Verdict: v, Row: row}, nil
}

// ActivationDate returns the Thursday the card goes live. A Thursday decision before the
// cutoff hour activates the same day, at or after it the following Thursday.
func ActivationDate(now time.Time) time.Time {
	t := now.In(models.Moscow)
	days := (int(time.Thursday) - int(t.Weekday()) + 7) % 7
	if days == 0 && t.Hour() >= models.ActivationCutoffHour {
		days = 7
	}
	y, m, d := t.AddDate(0, 0, days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, models.Moscow)
}

func FormatActivationDate(now time.Time) string {
	return ActivationDate(now).Format(models.DateLayout)
}
