package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/iudanet/gophmesh/internal/binary"
	"github.com/iudanet/gophmesh/internal/crdt"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/validation"
)

// ErrInvalidChange indicates a change that decoded but is not usable
var ErrInvalidChange = errors.New("invalid change")

var clockSchema = binary.MustSchema("Clock",
	binary.Field{Name: "global", Tag: 1, Kind: binary.KindUint},
	binary.Field{Name: "site", Tag: 2, Kind: binary.KindUint},
	binary.Field{Name: "local", Tag: 3, Kind: binary.KindUint},
)

// Clock кодирует crdt.Clock как вложенное сообщение
type Clock crdt.Clock

func (c *Clock) Schema() *binary.Schema { return clockSchema }

func (c *Clock) MarshalFields(e *binary.Encoder) {
	e.Uint(1, c.Global)
	e.Uint(2, uint64(c.Site))
	e.Uint(3, c.Local)
}

func (c *Clock) UnmarshalField(d *binary.Decoder, tag uint64) error {
	v, err := d.Uint()
	if err != nil {
		return err
	}
	switch tag {
	case 1:
		if v > crdt.MaxGlobal {
			return fmt.Errorf("%w: global %d exceeds 40 bits", binary.ErrMalformed, v)
		}
		c.Global = v
	case 2:
		if v > math.MaxUint32 {
			return fmt.Errorf("%w: site %d exceeds 32 bits", binary.ErrMalformed, v)
		}
		c.Site = uint32(v)
	case 3:
		c.Local = v
	}
	return nil
}

var updateSchema = binary.MustSchema("Update",
	binary.Field{Name: "clock", Tag: 1, Kind: binary.KindMessage},
	binary.Field{Name: "table", Tag: 2, Kind: binary.KindString},
	binary.Field{Name: "rowId", Tag: 3, Kind: binary.KindString},
	binary.Field{Name: "value", Tag: 4, Kind: binary.KindJSON},
)

// Update записывает значение строки
type Update struct {
	Table string
	RowID string
	Value json.RawMessage
	Clock Clock
}

func (u *Update) Schema() *binary.Schema { return updateSchema }

func (u *Update) MarshalFields(e *binary.Encoder) {
	e.Message(1, &u.Clock)
	e.String(2, u.Table)
	e.String(3, u.RowID)
	e.JSON(4, u.Value)
}

func (u *Update) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	switch tag {
	case 1:
		err = d.Message(&u.Clock)
	case 2:
		u.Table, err = d.String()
	case 3:
		u.RowID, err = d.String()
	case 4:
		u.Value, err = d.JSON()
	}
	return err
}

var deleteSchema = binary.MustSchema("Delete",
	binary.Field{Name: "clock", Tag: 1, Kind: binary.KindMessage},
	binary.Field{Name: "table", Tag: 2, Kind: binary.KindString},
	binary.Field{Name: "rowId", Tag: 3, Kind: binary.KindString},
)

// Delete помечает строку удалённой
type Delete struct {
	Table string
	RowID string
	Clock Clock
}

func (m *Delete) Schema() *binary.Schema { return deleteSchema }

func (m *Delete) MarshalFields(e *binary.Encoder) {
	e.Message(1, &m.Clock)
	e.String(2, m.Table)
	e.String(3, m.RowID)
}

func (m *Delete) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	switch tag {
	case 1:
		err = d.Message(&m.Clock)
	case 2:
		m.Table, err = d.String()
	case 3:
		m.RowID, err = d.String()
	}
	return err
}

// ChangeOneof is the Change union. Variant order is part of the wire format.
var ChangeOneof = binary.MustOneof("Change",
	func() binary.Message { return &Update{} },
	func() binary.Message { return &Delete{} },
)

// EncodeChange сериализует изменение. Хэш изменения считается от этих байт.
func EncodeChange(c models.Change) ([]byte, error) {
	if err := validateChange(c); err != nil {
		return nil, err
	}

	switch c.Kind {
	case models.ChangeUpdate:
		return ChangeOneof.Marshal(&Update{
			Clock: Clock(c.Clock),
			Table: c.Table,
			RowID: c.RowID,
			Value: c.Value,
		})
	case models.ChangeDelete:
		return ChangeOneof.Marshal(&Delete{
			Clock: Clock(c.Clock),
			Table: c.Table,
			RowID: c.RowID,
		})
	default:
		return nil, fmt.Errorf("%w: unknown kind %s", ErrInvalidChange, c.Kind)
	}
}

// DecodeChange разбирает и проверяет сериализованное изменение.
// Любая ошибка оборачивает binary.ErrMalformed.
func DecodeChange(data []byte) (models.Change, error) {
	m, err := ChangeOneof.Unmarshal(data)
	if err != nil {
		return models.Change{}, err
	}

	var c models.Change
	switch v := m.(type) {
	case *Update:
		c = models.Change{
			Kind:  models.ChangeUpdate,
			Clock: crdt.Clock(v.Clock),
			Table: v.Table,
			RowID: v.RowID,
			Value: v.Value,
		}
	case *Delete:
		c = models.Change{
			Kind:  models.ChangeDelete,
			Clock: crdt.Clock(v.Clock),
			Table: v.Table,
			RowID: v.RowID,
		}
	}

	if err := validateChange(c); err != nil {
		return models.Change{}, fmt.Errorf("%w: %w", binary.ErrMalformed, err)
	}
	return c, nil
}

// validateChange отклоняет всё, что таблицы не смогут применить:
// такое изменение не должно попасть в журнал и уйти другим пирам
func validateChange(c models.Change) error {
	if err := validation.ValidateTableName(c.Table); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}
	if err := validation.ValidateRowID(c.RowID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}
	if c.Kind == models.ChangeUpdate {
		if len(c.Value) == 0 {
			return fmt.Errorf("%w: update without value", ErrInvalidChange)
		}
		if !json.Valid(c.Value) {
			return fmt.Errorf("%w: update value is not valid JSON", ErrInvalidChange)
		}
	}
	if err := c.Clock.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}
	return nil
}
