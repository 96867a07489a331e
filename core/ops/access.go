package ops

// Access classifies who may run an operation.
type Access int

const (
	AccessPublic Access = iota // any chat
	AccessAdmin                // chats listed in ADMIN_CHAT_IDS
)

// AccessClassifier is an optional interface ops may implement to declare
// their access level. Ops that don't implement it are public.
type AccessClassifier interface {
	Access() Access
}

// AccessOf returns the access level of an op.
func AccessOf(op Op) Access {
	if ac, ok := op.(AccessClassifier); ok {
		return ac.Access()
	}
	return AccessPublic
}

// adminOnly is embedded by admin ops.
type adminOnly struct{}

func (adminOnly) Access() Access { return AccessAdmin }
