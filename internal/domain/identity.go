package domain

// Identity is the verified principal bound to a connection at handshake time.
// It is immutable for the life of the connection and is the only source of
// user information for every event processed on that connection.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
