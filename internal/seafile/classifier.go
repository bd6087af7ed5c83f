package seafile

import (
	"net/http"
	"strings"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

// Outcome is the verdict of a Classifier.
type Outcome int

const (
	OutcomeUnrelated Outcome = iota
	OutcomePasswordInvalid
	OutcomePasswordRequired
)

// Err returns the sentinel for password outcomes and nil otherwise.
func (o Outcome) Err() error {
	switch o {
	case OutcomePasswordInvalid:
		return transfer.ErrPasswordInvalid
	case OutcomePasswordRequired:
		return transfer.ErrPasswordRequired
	default:
		return nil
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomePasswordInvalid:
		return "password_invalid"
	case OutcomePasswordRequired:
		return "password_required"
	default:
		return "unrelated"
	}
}

// Classifier decides whether a failed response is about the share password.
type Classifier interface {
	Classify(status int, body string, hadPassword bool) Outcome
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(status int, body string, hadPassword bool) Outcome

func (f ClassifierFunc) Classify(status int, body string, hadPassword bool) Outcome {
	return f(status, body, hadPassword)
}

// BodyClassifier sniffs the response text. The server has no stable error code for password
// problems, so an unrelated 4xx must never be reported as a password outcome.
type BodyClassifier struct {
	Indicators []string
	WrongHints []string
}

// DefaultClassifier matches the English and Chinese wording the server uses.
var DefaultClassifier = &BodyClassifier{
	Indicators: []string{"password", "encrypted", "请输入密码", "密码"},
	WrongHints: []string{"incorrect", "wrong"},
}

func (c *BodyClassifier) Classify(status int, body string, hadPassword bool) Outcome {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
	default:
		return OutcomeUnrelated
	}

	lower := strings.ToLower(body)
	if !containsAny(lower, c.Indicators) {
		return OutcomeUnrelated
	}

	if (strings.Contains(lower, "invalid") && strings.Contains(lower, "password")) || containsAny(lower, c.WrongHints) {
		return OutcomePasswordInvalid
	}

	if hadPassword {
		return OutcomePasswordInvalid
	}

	return OutcomePasswordRequired
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
