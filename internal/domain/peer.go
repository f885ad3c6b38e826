package domain

import (
	"strconv"
	"strings"
)

type PeerID int

func (id PeerID) String() string {
	return strconv.Itoa(int(id))
}

type Role string

const (
	RoleContent Role = "content"
	RoleControl Role = "control"
)

// Connection names announced by the extension when it opens a channel.
const (
	ContentConnectionName = "azad_inject"
	ControlConnectionName = "azad_control"
)

func RoleForConnection(name string) (Role, error) {
	switch strings.TrimSpace(name) {
	case ContentConnectionName:
		return RoleContent, nil
	case ControlConnectionName:
		return RoleControl, nil
	default:
		return "", ErrUnknownConnection
	}
}
