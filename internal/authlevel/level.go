package authlevel

import "fmt"

// Level is the ordinal trust tier of a caller.
type Level int

const (
	// Anonymous is the level of a caller without a session.
	Anonymous Level = 0
	// Base is any signed-in account.
	Base Level = 1
	// Mail requires a confirmed email address.
	Mail Level = 2
	// Phone requires a confirmed phone number.
	Phone Level = 3
	// Document requires a confirmed identity document.
	Document Level = 4
)

func (l Level) String() string {
	switch l {
	case Anonymous:
		return "anonymous"
	case Base:
		return "base"
	case Mail:
		return "mail"
	case Phone:
		return "phone"
	case Document:
		return "document"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Flags are the completion markers of the three verification steps.
type Flags struct {
	Mail     bool
	Mobile   bool
	Document bool
}

// Compute returns the level of the highest completed step, checked from the top down.
// Lower steps are not required: a confirmed document alone yields Document.
func Compute(f Flags) Level {
	switch {
	case f.Document:
		return Document
	case f.Mobile:
		return Phone
	case f.Mail:
		return Mail
	default:
		return Base
	}
}
