package session

// State is the shape of the session carried by a request's cookies
type State int

const (
	NoSession       State = iota // No access, refresh or username cookie
	ActiveAccess                 // Access token present, refresh may also be possible
	RefreshableOnly              // No access token, refresh token and username present
	Invalid                      // A partial set that can be neither verified nor refreshed
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no_session"
	case ActiveAccess:
		return "active_access"
	case RefreshableOnly:
		return "refreshable_only"
	default:
		return "invalid"
	}
}

// Classify computes the session state from a cookie snapshot
func Classify(s Snapshot) State {
	switch {
	case s.AccessToken != "":
		return ActiveAccess
	case s.RefreshToken != "" && s.Username != "":
		return RefreshableOnly
	case s.RefreshToken == "" && s.Username == "":
		return NoSession
	default:
		return Invalid
	}
}

// CanRefresh reports whether the snapshot holds what a refresh needs
func (s Snapshot) CanRefresh() bool {
	return s.RefreshToken != "" && s.Username != ""
}
