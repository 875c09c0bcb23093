package types

import (
	"fmt"
	"math/big"
)

// Amount 表示链上的代币数额，任意精度
// JSON编码使用十进制字符串，避免大数在不同json实现下溢出
type Amount big.Int

func NewAmount(v int64) *Amount {
	return (*Amount)(big.NewInt(v))
}

func ZeroAmount() *Amount {
	return NewAmount(0)
}

// ParseAmount 解析十进制字符串，负数一律视为非法
func ParseAmount(s string) (*Amount, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if i.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return (*Amount)(i), nil
}

func (a *Amount) Int() *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return (*big.Int)(a)
}

func (a *Amount) Clone() *Amount {
	return (*Amount)(new(big.Int).Set(a.Int()))
}

// Add 返回a+b，不修改原值
func (a *Amount) Add(b *Amount) *Amount {
	return (*Amount)(new(big.Int).Add(a.Int(), b.Int()))
}

// Sub 返回a-b，不修改原值
func (a *Amount) Sub(b *Amount) *Amount {
	return (*Amount)(new(big.Int).Sub(a.Int(), b.Int()))
}

// MulInt64 返回a*n，不修改原值
func (a *Amount) MulInt64(n int64) *Amount {
	return (*Amount)(new(big.Int).Mul(a.Int(), big.NewInt(n)))
}

func (a *Amount) Cmp(b *Amount) int {
	return a.Int().Cmp(b.Int())
}

func (a *Amount) Sign() int {
	return a.Int().Sign()
}

func (a *Amount) IsZero() bool {
	return a.Sign() == 0
}

func (a *Amount) String() string {
	return a.Int().String()
}

func (a *Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Int().String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(bz []byte) error {
	s := string(bz)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	*(*big.Int)(a) = *i
	return nil
}
