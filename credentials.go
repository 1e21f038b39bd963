package influxpool

import "strconv"

// Credentials holds the username and password sent to InfluxDB
type Credentials struct {
	Username string
	Password string
}

func NewCredentials(username, password string) Credentials {
	return Credentials{Username: username, Password: password}
}

// GetId returns a string unique for the pair. Both parts are quoted so no
// username or password can spill into the other.
func (cr Credentials) GetId() string {
	return strconv.Quote(cr.Username) + ":" + strconv.Quote(cr.Password)
}
