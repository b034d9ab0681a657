package api

import (
	"fmt"
	"math"

	"github.com/iudanet/gophmesh/internal/binary"
)

// RPCType тип RPC кадра
type RPCType uint64

const (
	RPCRequest  RPCType = 1 // RPCRequest вызов метода
	RPCResponse RPCType = 2 // RPCResponse успешный ответ
	RPCError    RPCType = 3 // RPCError ответ с ошибкой, payload - Any(ErrorMessage)
)

// MaxPieceSize ограничивает payload одного MessagePiece
const MaxPieceSize = 60000

var rpcSchema = binary.MustSchema("Rpc",
	binary.Field{Name: "type", Tag: 1, Kind: binary.KindUint},
	binary.Field{Name: "id", Tag: 2, Kind: binary.KindUint},
	binary.Field{Name: "method", Tag: 3, Kind: binary.KindString},
	binary.Field{Name: "payload", Tag: 4, Kind: binary.KindBytes},
)

// RPC кадр вызова или ответа
type RPC struct {
	Method  string
	Payload []byte
	Type    RPCType
	ID      uint32
}

func (r *RPC) Schema() *binary.Schema { return rpcSchema }

func (r *RPC) MarshalFields(e *binary.Encoder) {
	e.Uint(1, uint64(r.Type))
	e.Uint(2, uint64(r.ID))
	if r.Method != "" {
		e.String(3, r.Method)
	}
	e.Bytes(4, r.Payload)
}

func (r *RPC) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	switch tag {
	case 1:
		var v uint64
		v, err = d.Uint()
		if err == nil && (v < uint64(RPCRequest) || v > uint64(RPCError)) {
			err = fmt.Errorf("%w: rpc type %d", binary.ErrMalformed, v)
		}
		r.Type = RPCType(v)
	case 2:
		var v uint64
		v, err = d.Uint()
		if err == nil && v > math.MaxUint32 {
			err = fmt.Errorf("%w: rpc id %d exceeds 32 bits", binary.ErrMalformed, v)
		}
		r.ID = uint32(v)
	case 3:
		r.Method, err = d.String()
	case 4:
		r.Payload, err = d.Bytes()
	}
	return err
}

var messagePieceSchema = binary.MustSchema("MessagePiece",
	binary.Field{Name: "messageId", Tag: 1, Kind: binary.KindUint},
	binary.Field{Name: "piece", Tag: 2, Kind: binary.KindUint},
	binary.Field{Name: "pieceCount", Tag: 3, Kind: binary.KindUint},
	binary.Field{Name: "payload", Tag: 4, Kind: binary.KindBytes},
	binary.Field{Name: "compressed", Tag: 5, Kind: binary.KindBool},
)

// MessagePiece кусок зашифрованного сообщения. Транспорт ограничивает размер
// одного сообщения, поэтому большие payload режутся на куски и собираются по MessageID.
type MessagePiece struct {
	Payload    []byte
	MessageID  uint64
	Piece      uint64
	PieceCount uint64
	Compressed bool
}

func (p *MessagePiece) Schema() *binary.Schema { return messagePieceSchema }

func (p *MessagePiece) MarshalFields(e *binary.Encoder) {
	e.Uint(1, p.MessageID)
	e.Uint(2, p.Piece)
	e.Uint(3, p.PieceCount)
	e.Bytes(4, p.Payload)
	if p.Compressed {
		e.Bool(5, p.Compressed)
	}
}

func (p *MessagePiece) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	switch tag {
	case 1:
		p.MessageID, err = d.Uint()
	case 2:
		p.Piece, err = d.Uint()
	case 3:
		p.PieceCount, err = d.Uint()
	case 4:
		p.Payload, err = d.Bytes()
	case 5:
		p.Compressed, err = d.Bool()
	}
	return err
}

var errorMessageSchema = binary.MustSchema("RpcError",
	binary.Field{Name: "message", Tag: 1, Kind: binary.KindString},
)

// ErrorMessage тело ERROR кадра
type ErrorMessage struct {
	Message string
}

func (m *ErrorMessage) Schema() *binary.Schema { return errorMessageSchema }

func (m *ErrorMessage) MarshalFields(e *binary.Encoder) {
	e.String(1, m.Message)
}

func (m *ErrorMessage) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	m.Message, err = d.String()
	return err
}

// NewRegistry возвращает реестр всех сообщений протокола синхронизации.
// Используется для Any payload (ошибки RPC) и для проверки таблицы методов.
func NewRegistry() *binary.Registry {
	return binary.NewRegistry().MustRegister(
		func() binary.Message { return &GetUnseenChangesReq{} },
		func() binary.Message { return &GetUnseenChangesResp{} },
		func() binary.Message { return &GetRecentChangesReq{} },
		func() binary.Message { return &GetRecentChangesResp{} },
		func() binary.Message { return &ErrorMessage{} },
	)
}
