package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/iudanet/gophmesh/internal/crdt"
)

// ChangeKind тип изменения строки
type ChangeKind uint8

const (
	ChangeUpdate ChangeKind = iota + 1 // ChangeUpdate записывает значение строки
	ChangeDelete                       // ChangeDelete помечает строку удалённой
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Change представляет одно изменение строки таблицы.
// Идентичность изменения - хэш его сериализованных байт, поэтому
// повторное получение того же изменения всегда обнаруживается.
type Change struct {
	Table string          `json:"table"`           // Table имя таблицы
	RowID string          `json:"row_id"`          // RowID идентификатор строки
	Value json.RawMessage `json:"value,omitempty"` // Value JSON значение, только для ChangeUpdate
	Clock crdt.Clock      `json:"clock"`           // Clock часы изменения
	Kind  ChangeKind      `json:"kind"`            // Kind тип изменения
}

// Clone создает глубокую копию изменения
func (c Change) Clone() Change {
	out := c
	if c.Value != nil {
		out.Value = bytes.Clone(c.Value)
	}
	return out
}

// Entry возвращает запись LWW map, которую изменение пытается записать.
func (c Change) Entry() crdt.Entry {
	return crdt.Entry{
		Clock:   c.Clock,
		Value:   c.Value,
		Deleted: c.Kind == ChangeDelete,
	}
}

// RowKey возвращает ключ строки, уникальный в пределах всей базы.
func (c Change) RowKey() RowKey {
	return RowKey{Table: c.Table, RowID: c.RowID}
}

// RowKey адрес строки: таблица и идентификатор.
type RowKey struct {
	Table string
	RowID string
}

func (k RowKey) String() string {
	return k.Table + "/" + k.RowID
}

// Row представляет снимок строки в том виде, в котором он хранится на диске.
type Row struct {
	Table   string          `json:"table"`
	RowID   string          `json:"row_id"`
	Value   json.RawMessage `json:"value,omitempty"`
	Clock   crdt.Clock      `json:"clock"`
	Deleted bool            `json:"deleted,omitempty"`
}

// Key возвращает адрес строки.
func (r Row) Key() RowKey {
	return RowKey{Table: r.Table, RowID: r.RowID}
}

// Entry конвертирует снимок в запись LWW map.
func (r Row) Entry() crdt.Entry {
	return crdt.Entry{Clock: r.Clock, Value: r.Value, Deleted: r.Deleted}
}

// Conflict описывает локальное изменение, проигравшее удалённому по правилу LWW.
// Носит информационный характер: победитель уже определён.
type Conflict struct {
	Local      Change // Local локальное изменение, ещё не подтверждённое ни одним пиром
	Remote     Change // Remote удалённое изменение с более поздними часами
	LocalHash  string
	RemoteHash string
}
