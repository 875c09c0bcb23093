package rpc

import (
	"ldpos_chain/store"
	"ldpos_chain/types"
)

// api 把同一组handler分别以public和private两档参数上限
// 挂到两个listener上
type api struct {
	private bool
}

type apiCaps struct {
	defaultLimit int
	maxLimit     int
	maxOffset    int
}

func (a api) caps() apiCaps {
	rc := env.Config.RPC
	if a.private {
		return apiCaps{
			defaultLimit: rc.APILimit,
			maxLimit:     rc.MaxPrivateAPILimit,
			maxOffset:    rc.MaxPrivateAPIOffset,
		}
	}
	return apiCaps{
		defaultLimit: rc.APILimit,
		maxLimit:     rc.MaxPublicAPILimit,
		maxOffset:    rc.MaxPublicAPIOffset,
	}
}

// sanitizeList 校验列表查询的offset/limit/order。
// limit为0时落到apiLimit，order为空时按升序
func (a api) sanitizeList(offset, limit int, order string) (int, int, store.Order, error) {
	caps := a.caps()
	if offset < 0 || offset > caps.maxOffset {
		return 0, 0, "", types.NewInvalidActionError(types.ErrNameInvalidAction,
			"offset %v was outside of the range 0-%v", offset, caps.maxOffset)
	}
	if limit == 0 {
		limit = caps.defaultLimit
	}
	if limit < 0 || limit > caps.maxLimit {
		return 0, 0, "", types.NewInvalidActionError(types.ErrNameInvalidAction,
			"limit %v was outside of the range 1-%v", limit, caps.maxLimit)
	}
	ord := store.OrderAsc
	if order != "" {
		ord = store.Order(order)
		if !ord.Valid() {
			return 0, 0, "", types.NewInvalidActionError(types.ErrNameInvalidAction,
				"order %v was neither asc nor desc", order)
		}
	}
	return offset, limit, ord, nil
}

// sanitizeLimit 校验只带limit的查询
func (a api) sanitizeLimit(limit int) (int, error) {
	caps := a.caps()
	if limit == 0 {
		limit = caps.defaultLimit
	}
	if limit < 0 || limit > caps.maxLimit {
		return 0, types.NewInvalidActionError(types.ErrNameInvalidAction,
			"limit %v was outside of the range 1-%v", limit, caps.maxLimit)
	}
	return limit, nil
}

// window 对已经在内存里的完整列表套用offset/limit
func window(length, offset, limit int) (int, int) {
	if offset > length {
		offset = length
	}
	end := offset + limit
	if end > length {
		end = length
	}
	return offset, end
}
