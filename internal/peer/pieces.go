package peer

import (
	"fmt"

	"github.com/iudanet/gophmesh/pkg/api"
)

// partial сообщение, собираемое из кусков
type partial struct {
	pieces     [][]byte
	seen       uint64
	size       int
	compressed bool
}

// assembler собирает MessagePiece в сообщения. Используется только из цикла чтения
type assembler struct {
	buffers    map[uint64]*partial
	maxPieces  uint64
	maxPending int
}

func newAssembler(maxPieces uint64, maxPending int) *assembler {
	return &assembler{
		buffers:    make(map[uint64]*partial),
		maxPieces:  maxPieces,
		maxPending: maxPending,
	}
}

// add принимает кусок. Возвращает собранное сообщение, когда пришли все куски
func (a *assembler) add(p *api.MessagePiece) ([]byte, bool, error) {
	if p.PieceCount == 0 || p.PieceCount > a.maxPieces {
		return nil, false, fmt.Errorf("%w: piece count %d", ErrProtocol, p.PieceCount)
	}
	if p.Piece >= p.PieceCount {
		return nil, false, fmt.Errorf("%w: piece %d of %d", ErrProtocol, p.Piece, p.PieceCount)
	}
	if len(p.Payload) > api.MaxPieceSize {
		return nil, false, fmt.Errorf("%w: piece of %d bytes", ErrProtocol, len(p.Payload))
	}

	if p.PieceCount == 1 {
		return p.Payload, p.Compressed, nil
	}

	buf, ok := a.buffers[p.MessageID]
	if !ok {
		if len(a.buffers) >= a.maxPending {
			return nil, false, fmt.Errorf("%w: too many partial messages", ErrProtocol)
		}
		buf = &partial{pieces: make([][]byte, p.PieceCount), compressed: p.Compressed}
		a.buffers[p.MessageID] = buf
	}

	if uint64(len(buf.pieces)) != p.PieceCount || buf.compressed != p.Compressed {
		return nil, false, fmt.Errorf("%w: inconsistent pieces for message %d", ErrProtocol, p.MessageID)
	}
	if buf.pieces[p.Piece] != nil {
		// повтор куска игнорируется
		return nil, false, nil
	}

	buf.pieces[p.Piece] = p.Payload
	buf.seen++
	buf.size += len(p.Payload)
	if buf.seen < p.PieceCount {
		return nil, false, nil
	}

	delete(a.buffers, p.MessageID)
	out := make([]byte, 0, buf.size)
	for _, piece := range buf.pieces {
		out = append(out, piece...)
	}
	return out, buf.compressed, nil
}

// split режет зашифрованное сообщение на куски не длиннее api.MaxPieceSize
func split(messageID uint64, data []byte, compressed bool) []*api.MessagePiece {
	count := (len(data) + api.MaxPieceSize - 1) / api.MaxPieceSize
	if count == 0 {
		count = 1
	}

	pieces := make([]*api.MessagePiece, 0, count)
	for i := range count {
		start := i * api.MaxPieceSize
		end := min(start+api.MaxPieceSize, len(data))
		pieces = append(pieces, &api.MessagePiece{
			MessageID:  messageID,
			Piece:      uint64(i),
			PieceCount: uint64(count),
			Payload:    data[start:end],
			Compressed: compressed,
		})
	}
	return pieces
}
