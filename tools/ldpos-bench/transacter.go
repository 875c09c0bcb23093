package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"ldpos_chain/cryptoclient"
	"ldpos_chain/types"
)

const (
	sendTimeout = 10 * time.Second
	// the rpc server closes the websocket in the absence of pings
	pingPeriod = (30 * 9 / 10) * time.Second
)

// txFactory 所有连接共用一个资金钱包发转账。
// 时间戳在锁内单调递增，和sig密钥序号的推进保持同序，
// 乱序到达的交易靠节点的发送者重放窗口纠正
type txFactory struct {
	client *cryptoclient.WalletClient
	symbol string
	amount string
	fee    string

	mtx    sync.Mutex
	lastTs int64
}

func (f *txFactory) buildTransfer() (*types.Transaction, error) {
	amount, err := types.ParseAmount(f.amount)
	if err != nil {
		return nil, errors.Wrap(err, "invalid amount")
	}
	fee, err := types.ParseAmount(f.fee)
	if err != nil {
		return nil, errors.Wrap(err, "invalid fee")
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	ts := time.Now().UnixNano()/int64(time.Millisecond) - 1000
	if ts <= f.lastTs {
		ts = f.lastTs + 1
	}
	f.lastTs = ts

	tx := &types.Transaction{
		Type:          types.TxTypeTransfer,
		SenderAddress: f.client.Address(),
		RecipientAddress: types.WalletAddressFromPublicKey(
			f.symbol, cryptoclient.PublicKeyAt(tmrand.Str(24), cryptoclient.KeyChainSig, 0)),
		Amount:    amount,
		Fee:       fee,
		Timestamp: ts,
	}
	if err := f.client.PrepareTransaction(tx); err != nil {
		return nil, err
	}

	return tx, nil
}

type transacter struct {
	Target      string
	Rate        int
	Connections int

	factory     *txFactory
	conns       []*websocket.Conn
	connsBroken []bool
	startingWg  sync.WaitGroup
	endingWg    sync.WaitGroup
	stopped     bool

	logger log.Logger
}

func newTransacter(target string, connections, rate int, factory *txFactory) *transacter {
	return &transacter{
		Target:      target,
		Rate:        rate,
		Connections: connections,
		factory:     factory,
		conns:       make([]*websocket.Conn, connections),
		connsBroken: make([]bool, connections),
		logger:      log.NewNopLogger(),
	}
}

// SetLogger lets you set your own logger
func (t *transacter) SetLogger(l log.Logger) {
	t.logger = l
}

// Start opens N = `t.Connections` connections to the target and creates read
// and write goroutines for each connection.
func (t *transacter) Start() error {
	t.stopped = false

	for i := 0; i < t.Connections; i++ {
		c, _, err := connect(t.Target)
		if err != nil {
			return err
		}
		t.conns[i] = c
	}

	t.startingWg.Add(t.Connections)
	t.endingWg.Add(2 * t.Connections)
	for i := 0; i < t.Connections; i++ {
		go t.sendLoop(i)
		go t.receiveLoop(i)
	}

	t.startingWg.Wait()

	return nil
}

// Stop closes the connections.
func (t *transacter) Stop() {
	t.stopped = true
	t.endingWg.Wait()
	for _, c := range t.conns {
		c.Close()
	}
}

// receiveLoop drains the responses from the connection. Rejected
// transactions only show up here, the sender does not wait for them.
func (t *transacter) receiveLoop(connIndex int) {
	c := t.conns[connIndex]
	defer t.endingWg.Done()
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.logger.Error(
					fmt.Sprintf("failed to read response on conn %d", connIndex),
					"err",
					err,
				)
			}
			return
		}
		if t.stopped || t.connsBroken[connIndex] {
			return
		}
	}
}

// sendLoop generates transactions at a given rate.
func (t *transacter) sendLoop(connIndex int) {
	started := false
	// Close the starting waitgroup, in the event that this fails to start
	defer func() {
		if !started {
			t.startingWg.Done()
		}
	}()
	c := t.conns[connIndex]

	c.SetPingHandler(func(message string) error {
		err := c.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(sendTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		} else if e, ok := err.(net.Error); ok && e.Temporary() {
			return nil
		}
		return err
	})

	logger := t.logger.With("addr", c.RemoteAddr())

	pingsTicker := time.NewTicker(pingPeriod)
	txsTicker := time.NewTicker(1 * time.Second)
	defer func() {
		pingsTicker.Stop()
		txsTicker.Stop()
		t.endingWg.Done()
	}()

	for {
		select {
		case <-txsTicker.C:
			startTime := time.Now()
			endTime := startTime.Add(time.Second)
			numTxSent := t.Rate
			if !started {
				t.startingWg.Done()
				started = true
			}

			now := time.Now()
			for i := 0; i < t.Rate; i++ {
				tx, err := t.factory.buildTransfer()
				if err != nil {
					fmt.Printf("failed to build transaction: %v\n", err)
					os.Exit(1)
				}
				rawTx, err := tmjson.Marshal(tx)
				if err != nil {
					fmt.Printf("failed to encode transaction: %v\n", err)
					os.Exit(1)
				}
				paramsJSON, err := json.Marshal(map[string]json.RawMessage{"transaction": rawTx})
				if err != nil {
					fmt.Printf("failed to encode params: %v\n", err)
					os.Exit(1)
				}

				c.SetWriteDeadline(now.Add(sendTimeout))
				err = c.WriteJSON(rpctypes.RPCRequest{
					JSONRPC: "2.0",
					ID:      rpctypes.JSONRPCStringID("ldpos-bench"),
					Method:  "postTransaction",
					Params:  paramsJSON,
				})
				if err != nil {
					err = errors.Wrap(err,
						fmt.Sprintf("txs send failed on connection #%d", connIndex))
					t.connsBroken[connIndex] = true
					logger.Error(err.Error())
					return
				}

				// cache the time.Now() reads to save time.
				if i%5 == 0 {
					now = time.Now()
					if now.After(endTime) {
						// Plus one accounts for sending this tx
						numTxSent = i + 1
						break
					}
				}
			}

			timeToSend := time.Since(startTime)
			logger.Info(fmt.Sprintf("sent %d transactions", numTxSent), "took", timeToSend)
			if timeToSend < 1*time.Second {
				sleepTime := time.Second - timeToSend
				logger.Debug(fmt.Sprintf("connection #%d is sleeping for %f seconds", connIndex, sleepTime.Seconds()))
				time.Sleep(sleepTime)
			}

		case <-pingsTicker.C:
			// go-rpc server closes the connection in the absence of pings
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				err = errors.Wrap(err,
					fmt.Sprintf("failed to write ping message on conn #%d", connIndex))
				logger.Error(err.Error())
				t.connsBroken[connIndex] = true
			}
		}

		if t.stopped {
			// To cleanly close a connection, a client should send a close
			// frame and wait for the server to close the connection.
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				err = errors.Wrap(err,
					fmt.Sprintf("failed to write close message on conn #%d", connIndex))
				logger.Error(err.Error())
				t.connsBroken[connIndex] = true
			}

			return
		}
	}
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}
