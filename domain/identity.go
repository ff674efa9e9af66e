package domain

// Identity is a known chat participant. Identities are created the
// first time a name authenticates and never expire; Online mirrors the
// live presence registry across restarts.
type Identity struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
}
