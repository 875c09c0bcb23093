package types

import (
	"errors"
	"fmt"
)

// InvalidActionError DAL和RPC向调用方暴露的统一错误形态，
// Name为稳定的错误名，客户端按名分发
type InvalidActionError struct {
	Name    string
	Message string
}

func (e InvalidActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

const (
	ErrNameAccountDidNotExist            = "AccountDidNotExistError"
	ErrNameBlockDidNotExist              = "BlockDidNotExistError"
	ErrNameTransactionDidNotExist        = "TransactionDidNotExistError"
	ErrNameDelegateDidNotExist           = "DelegateDidNotExistError"
	ErrNameVoterAccountDidNotExist       = "VoterAccountDidNotExistError"
	ErrNameAccountWasNotMultisig         = "AccountWasNotMultisigError"
	ErrNamePendingTransactionDidNotExist = "PendingTransactionDidNotExistError"
	ErrNameInvalidTransaction            = "InvalidTransactionError"
	ErrNameInvalidAction                 = "InvalidActionError"
	ErrNameInvalidPassphrase             = "InvalidPassphraseError"
)

func NewInvalidActionError(name, format string, args ...interface{}) InvalidActionError {
	return InvalidActionError{Name: name, Message: fmt.Sprintf(format, args...)}
}

func ErrAccountDidNotExist(address string) InvalidActionError {
	return NewInvalidActionError(ErrNameAccountDidNotExist, "account %v did not exist", address)
}

func ErrBlockDidNotExist(ref interface{}) InvalidActionError {
	return NewInvalidActionError(ErrNameBlockDidNotExist, "block %v did not exist", ref)
}

func ErrTransactionDidNotExist(id string) InvalidActionError {
	return NewInvalidActionError(ErrNameTransactionDidNotExist, "transaction %v did not exist", id)
}

func ErrDelegateDidNotExist(address string) InvalidActionError {
	return NewInvalidActionError(ErrNameDelegateDidNotExist, "delegate %v did not exist", address)
}

func ErrAccountWasNotMultisig(address string) InvalidActionError {
	return NewInvalidActionError(ErrNameAccountWasNotMultisig, "account %v was not a multisig wallet", address)
}

// IsNotFound 各类*DidNotExistError的统一判断
func IsNotFound(err error) bool {
	var actionErr InvalidActionError
	if !errors.As(err, &actionErr) {
		return false
	}
	switch actionErr.Name {
	case ErrNameAccountDidNotExist, ErrNameBlockDidNotExist,
		ErrNameTransactionDidNotExist, ErrNameDelegateDidNotExist,
		ErrNameVoterAccountDidNotExist, ErrNamePendingTransactionDidNotExist:
		return true
	}
	return false
}

// InvalidTransactionError 交易认证或授权失败，交易被丢弃，不重试
type InvalidTransactionError struct {
	TxID   string
	Reason string
}

func (e InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction %v: %s", e.TxID, e.Reason)
}

func NewInvalidTransactionError(txID, format string, args ...interface{}) InvalidTransactionError {
	return InvalidTransactionError{TxID: txID, Reason: fmt.Sprintf(format, args...)}
}

// InvalidBlockError 区块验证失败，整个区块被拒绝
type InvalidBlockError struct {
	Height uint64
	ID     string
	Reason string
}

func (e InvalidBlockError) Error() string {
	return fmt.Sprintf("invalid block %v at height %d: %s", e.ID, e.Height, e.Reason)
}

func NewInvalidBlockError(block *Block, format string, args ...interface{}) InvalidBlockError {
	e := InvalidBlockError{Reason: fmt.Sprintf(format, args...)}
	if block != nil {
		e.Height = block.Height
		e.ID = block.ID
	}
	return e
}

// InvalidBlockSignatureError 委托人签名包验证失败，签名被丢弃
type InvalidBlockSignatureError struct {
	SignerAddress string
	BlockID       string
	Reason        string
}

func (e InvalidBlockSignatureError) Error() string {
	return fmt.Sprintf("invalid block signature from %v for block %v: %s",
		e.SignerAddress, e.BlockID, e.Reason)
}

func NewInvalidBlockSignatureError(sig *BlockSignature, format string, args ...interface{}) InvalidBlockSignatureError {
	e := InvalidBlockSignatureError{Reason: fmt.Sprintf(format, args...)}
	if sig != nil {
		e.SignerAddress = sig.SignerAddress
		e.BlockID = sig.BlockID
	}
	return e
}
