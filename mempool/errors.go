package mempool

import (
	"errors"
	"fmt"
)

var (
	// ErrTxInCache is returned to the client if we saw tx earlier
	ErrTxInCache = errors.New("transaction already seen")
	// ErrTxPending is returned when the exact transaction is still pending
	ErrTxPending = errors.New("transaction already pending")
)

// ErrStreamFull 发送者stream的pending交易数达到上限
type ErrStreamFull struct {
	Address string
	Cap     int
}

func (e ErrStreamFull) Error() string {
	return fmt.Sprintf("pending stream of %v is full (cap %d)", e.Address, e.Cap)
}

// ErrStreamBackpressure 发送者stream的在途认证数达到上限
type ErrStreamBackpressure struct {
	Address string
	Cap     int
}

func (e ErrStreamBackpressure) Error() string {
	return fmt.Sprintf("too many in-flight transactions for %v (cap %d)", e.Address, e.Cap)
}

// ErrKeyIndexOrder 密钥序号排序窗口拒绝了交易：接受它会让同一
// 发送者（或成员）已pending的某笔交易在上链时变得不可验证
type ErrKeyIndexOrder struct {
	Address  string
	Index    uint64
	UsedNext bool
}

func (e ErrKeyIndexOrder) Error() string {
	which := "current"
	if e.UsedNext {
		which = "next"
	}
	return fmt.Sprintf("key index %d (%s key) of %v conflicts with pending transactions",
		e.Index, which, e.Address)
}

// ErrRegistrationNotAlone 注册类交易要求发送者stream为空
type ErrRegistrationNotAlone struct {
	Address string
}

func (e ErrRegistrationNotAlone) Error() string {
	return fmt.Sprintf("registration transactions require an empty pending stream for %v", e.Address)
}

// ErrRegistrationPending stream上已有注册类交易，其后不再接受任何交易
type ErrRegistrationPending struct {
	Address string
}

func (e ErrRegistrationPending) Error() string {
	return fmt.Sprintf("a registration transaction is pending for %v", e.Address)
}
