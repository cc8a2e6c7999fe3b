package directory

// Actor is a user known to the directory; providers offer bookable slots,
// everyone may book them.
type Actor struct {
	ID         string
	Name       string
	Email      string
	IsProvider bool
}
