package task

import (
	"context"

	"github.com/cuemby/warren/internal/store/keys"
)

// Mailer delivers a calendar alarm notification. Actually sending mail is
// out of scope of this module (spec.md §1); alarm_delivery composes the
// outgoing message and hands it here.
type Mailer interface {
	Send(ctx context.Context, account keys.AccountID, subject, body string) error
}

// Trainer records a labeled sample for a spam classifier. Training itself
// is out of scope; bayes_train composes the sample and hands it here.
type Trainer interface {
	Train(ctx context.Context, account keys.AccountID, sample []byte, spam bool) error
}
