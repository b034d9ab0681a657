package api

import "github.com/iudanet/gophmesh/internal/binary"

// Имена RPC методов синхронизации
const (
	MethodGetUnseenChanges = "getUnseenChanges"
	MethodGetRecentChanges = "getRecentChanges"
)

var getUnseenChangesReqSchema = binary.MustSchema("GetUnseenChangesReq",
	binary.Field{Name: "bloomFilter", Tag: 1, Kind: binary.KindBytes},
)

// GetUnseenChangesReq запрос массовой сверки: Bloom фильтр изменений, которые уже есть у запрашивающего
type GetUnseenChangesReq struct {
	BloomFilter []byte
}

func (r *GetUnseenChangesReq) Schema() *binary.Schema { return getUnseenChangesReqSchema }

func (r *GetUnseenChangesReq) MarshalFields(e *binary.Encoder) {
	e.Bytes(1, r.BloomFilter)
}

func (r *GetUnseenChangesReq) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	r.BloomFilter, err = d.Bytes()
	return err
}

var getUnseenChangesRespSchema = binary.MustSchema("GetUnseenChangesResp",
	binary.Field{Name: "changes", Tag: 1, Kind: binary.KindRepeatedBytes},
	binary.Field{Name: "cursor", Tag: 2, Kind: binary.KindUint},
)

// GetUnseenChangesResp изменения, отсутствующие в фильтре, и длина журнала отвечающего
type GetUnseenChangesResp struct {
	Changes [][]byte
	Cursor  uint64
}

func (r *GetUnseenChangesResp) Schema() *binary.Schema { return getUnseenChangesRespSchema }

func (r *GetUnseenChangesResp) MarshalFields(e *binary.Encoder) {
	e.RepeatedBytes(1, r.Changes)
	e.Uint(2, r.Cursor)
}

func (r *GetUnseenChangesResp) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	switch tag {
	case 1:
		r.Changes, err = d.RepeatedBytes()
	case 2:
		r.Cursor, err = d.Uint()
	}
	return err
}

var getRecentChangesReqSchema = binary.MustSchema("GetRecentChangesReq",
	binary.Field{Name: "cursor", Tag: 1, Kind: binary.KindUint},
)

// GetRecentChangesReq запрос инкрементальной синхронизации с позиции cursor
type GetRecentChangesReq struct {
	Cursor uint64
}

func (r *GetRecentChangesReq) Schema() *binary.Schema { return getRecentChangesReqSchema }

func (r *GetRecentChangesReq) MarshalFields(e *binary.Encoder) {
	e.Uint(1, r.Cursor)
}

func (r *GetRecentChangesReq) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	r.Cursor, err = d.Uint()
	return err
}

var getRecentChangesRespSchema = binary.MustSchema("GetRecentChangesResp",
	binary.Field{Name: "changes", Tag: 1, Kind: binary.KindRepeatedBytes},
	binary.Field{Name: "cursor", Tag: 2, Kind: binary.KindUint},
)

// GetRecentChangesResp изменения, добавленные в журнал после cursor, и новый cursor
type GetRecentChangesResp struct {
	Changes [][]byte
	Cursor  uint64
}

func (r *GetRecentChangesResp) Schema() *binary.Schema { return getRecentChangesRespSchema }

func (r *GetRecentChangesResp) MarshalFields(e *binary.Encoder) {
	e.RepeatedBytes(1, r.Changes)
	e.Uint(2, r.Cursor)
}

func (r *GetRecentChangesResp) UnmarshalField(d *binary.Decoder, tag uint64) (err error) {
	switch tag {
	case 1:
		r.Changes, err = d.RepeatedBytes()
	case 2:
		r.Cursor, err = d.Uint()
	}
	return err
}
