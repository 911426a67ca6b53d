package model

import (
	"strconv"
	"strings"
)

// Location identifies the physical database a Shard resides on. Server and
// Database compare case-insensitively, matching typical SQL identifier
// collation; Port and Protocol compare exactly.
type Location struct {
	Server   string
	Database string
	Protocol string
	Port     int
}

// Equals reports whether l and other refer to the same physical location.
func (l Location) Equals(other Location) bool {
	return strings.EqualFold(l.Server, other.Server) &&
		strings.EqualFold(l.Database, other.Database) &&
		l.Protocol == other.Protocol &&
		l.Port == other.Port
}

// String renders the location as "protocol://server:port/database".
func (l Location) String() string {
	proto := l.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return proto + "://" + l.Server + ":" + strconv.Itoa(l.Port) + "/" + l.Database
}
