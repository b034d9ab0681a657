package share

import (
	"context"

	"github.com/iudanet/gophmesh/internal/binary"
	"github.com/iudanet/gophmesh/internal/changes"
	"github.com/iudanet/gophmesh/internal/peer"
	"github.com/iudanet/gophmesh/pkg/api"
)

// serverMethods таблица методов, которые пир обслуживает для других
func (s *Share) serverMethods() peer.Methods {
	return peer.Methods{
		api.MethodGetUnseenChanges: {
			NewRequest:  func() binary.Message { return &api.GetUnseenChangesReq{} },
			NewResponse: func() binary.Message { return &api.GetUnseenChangesResp{} },
			Handle: func(ctx context.Context, req binary.Message) (binary.Message, error) {
				return s.getUnseenChanges(ctx, req.(*api.GetUnseenChangesReq))
			},
		},
		api.MethodGetRecentChanges: {
			NewRequest:  func() binary.Message { return &api.GetRecentChangesReq{} },
			NewResponse: func() binary.Message { return &api.GetRecentChangesResp{} },
			Handle: func(ctx context.Context, req binary.Message) (binary.Message, error) {
				return s.getRecentChanges(ctx, req.(*api.GetRecentChangesReq))
			},
		},
	}
}

// getUnseenChanges отдаёт изменения, которых нет в фильтре запрашивающего.
// Курсор берётся до выборки, поэтому он никогда не опережает ответ
func (s *Share) getUnseenChanges(_ context.Context, req *api.GetUnseenChangesReq) (*api.GetUnseenChangesResp, error) {
	cursor := uint64(s.log.Len())

	missing, err := s.log.Missing(req.BloomFilter)
	if err != nil {
		return nil, err
	}

	return &api.GetUnseenChangesResp{
		Changes: s.serve(missing),
		Cursor:  cursor,
	}, nil
}

func (s *Share) getRecentChanges(_ context.Context, req *api.GetRecentChangesReq) (*api.GetRecentChangesResp, error) {
	entries, cursor := s.log.After(req.Cursor)
	return &api.GetRecentChangesResp{
		Changes: s.serve(entries),
		Cursor:  cursor,
	}, nil
}

// serve готовит ответ и отмечает отданные локальные изменения подтверждёнными
func (s *Share) serve(entries []changes.Entry) [][]byte {
	out := make([][]byte, len(entries))
	hashes := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Data
		hashes[i] = e.Hash
	}
	s.acknowledge(hashes)
	return out
}
