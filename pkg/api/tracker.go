package api

import "github.com/iudanet/gophmesh/internal/binary"

// Типы событий трекера
const (
	PeerEventJoin  = "join"  // PeerEventJoin пир подключился к feed
	PeerEventLeave = "leave" // PeerEventLeave пир отключился
)

// Announce первое текстовое сообщение клиента трекеру
type Announce struct {
	Feed   string `json:"feed"`    // идентификатор feed из строки подключения
	PeerID string `json:"peer_id"` // UUID клиента
}

// PeerEvent текстовое сообщение трекера о составе feed
type PeerEvent struct {
	Type   string `json:"type"`    // join или leave
	PeerID string `json:"peer_id"` // UUID пира
}

var relayFrameSchema = binary.MustSchema("RelayFrame",
	binary.Field{Name: "peer", Tag: 1, Kind: binary.KindString},
	binary.Field{Name: "payload", Tag: 2, Kind: binary.KindBytes},
)

// RelayFrame бинарный кадр, пересылаемый трекером между пирами.
// Клиент указывает получателя, трекер подменяет Peer на отправителя.
// Payload трекеру непрозрачен: это уже зашифрованный MessagePiece.
type RelayFrame struct {
	Peer    string
	Payload []byte
}

func (f *RelayFrame) Schema() *binary.Schema { return relayFrameSchema }

func (f *RelayFrame) MarshalFields(e *binary.Encoder) {
	e.String(1, f.Peer)
	e.Bytes(2, f.Payload)
}

func (f *RelayFrame) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	switch tag {
	case 1:
		f.Peer, err = d.String()
	case 2:
		f.Payload, err = d.Bytes()
	}
	return err
}
