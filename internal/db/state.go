package db

import "fmt"

// State says whether the local replica holds any data yet
type State int

const (
	StateEmpty State = iota // StateEmpty журнал изменений пуст
	StateReady              // StateReady есть хотя бы одно изменение
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connectivity says whether any peer is connected
type Connectivity int

const (
	Offline Connectivity = iota // Offline нет открытых каналов
	Online                      // Online хотя бы один пир на связи
)

func (c Connectivity) String() string {
	switch c {
	case Offline:
		return "offline"
	case Online:
		return "online"
	default:
		return fmt.Sprintf("connectivity(%d)", int(c))
	}
}
